package nfce

// Method identifies where the document XML of a successful retrieval came from
type Method string

const (
	// MethodSOAP is used when the document came from the authority's SOAP response (protNFe fragment)
	MethodSOAP Method = "soap"

	// MethodPortal is used when the portal was called with an already known protocol number
	MethodPortal Method = "portal"

	// MethodHybrid is used when SOAP resolved the protocol number and the portal returned the document
	MethodHybrid Method = "hybrid"
)

// AuthorizedStatus is the authority status code for an authorized invoice
const AuthorizedStatus = "100"

// Result is the outcome of retrieving one document.
//
// Err is set exactly when Success is false. ProtocolNumber and StatusCode are kept on failures
// when they were learned before the failing step.
type Result struct {
	Success        bool
	XMLContent     string
	ProtocolNumber string
	StatusCode     string
	Method         Method
	Err            error
}

// ErrorMessage returns the failure message, or "" for a successful result.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Succeeded builds a successful result
func Succeeded(method Method, xml, protocol, status string) Result {
	return Result{
		Success:        true,
		XMLContent:     xml,
		ProtocolNumber: protocol,
		StatusCode:     status,
		Method:         method,
	}
}

// Failed builds a failed result. err must not be nil.
func Failed(err error, protocol, status string) Result {
	if err == nil {
		err = NewInternalError("retrieval failed without an error")
	}
	return Result{
		Success:        false,
		ProtocolNumber: protocol,
		StatusCode:     status,
		Err:            err,
	}
}
