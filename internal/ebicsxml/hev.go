package ebicsxml

import "encoding/xml"

// HEVRequest is the unauthenticated "host, EBICS version" probe every
// client sends before attempting a real transaction (spec.md §4.3).
type HEVRequest struct {
	XMLName  xml.Name `xml:"ebicsHEVRequest"`
	HostID   string   `xml:"HostID"`
}

func (r *HEVRequest) RootName() RootElement { return RootHEVRequest }

// SupportedVersion names one EBICS/protocol revision pair the host
// supports, echoed back on an HEVResponse.
type SupportedVersion struct {
	ProtocolVersion string `xml:"ProtocolVersion"`
	VersionNumber   string `xml:"VersionNumber"`
}

// HEVResponse answers an HEVRequest with the host's supported protocol
// versions and a return code (always success — the sandbox supports
// exactly H004).
type HEVResponse struct {
	XMLName          xml.Name           `xml:"HEVResponse"`
	ReturnCode       string             `xml:"SystemReturnCode>ReturnCode"`
	ReportText       string             `xml:"SystemReturnCode>ReportText"`
	VersionNumbers   []SupportedVersion `xml:"VersionNumber"`
}

func (r *HEVResponse) RootName() RootElement { return RootHEVResponse }

// NewHEVResponse builds the fixed success response this sandbox always
// returns for H004.
func NewHEVResponse() *HEVResponse {
	return &HEVResponse{
		ReturnCode: "000000",
		ReportText: "[EBICS_OK] OK",
		VersionNumbers: []SupportedVersion{
			{ProtocolVersion: "H004", VersionNumber: "02.50"},
		},
	}
}
