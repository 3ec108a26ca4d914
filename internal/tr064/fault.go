package tr064

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// Fault is a SOAP-level error reported by the router. Code carries the UPnP
// error code; 606 means the action was not authorized.
type Fault struct {
	Code        int
	Description string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("upnp error %d: %s", f.Code, f.Description)
}

type soapFault struct {
	FaultString string `xml:"Body>Fault>faultstring"`
	Code        string `xml:"Body>Fault>detail>UPnPError>errorCode"`
	Description string `xml:"Body>Fault>detail>UPnPError>errorDescription"`
}

// parseFault extracts a UPnP fault from a SOAP error body, or nil if the
// body is not a fault envelope.
func parseFault(data []byte) *Fault {
	var f soapFault
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil
	}
	if f.Code == "" && f.FaultString == "" {
		return nil
	}
	code, _ := strconv.Atoi(f.Code)
	desc := f.Description
	if desc == "" {
		desc = f.FaultString
	}
	return &Fault{Code: code, Description: desc}
}
