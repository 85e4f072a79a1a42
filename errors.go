package dfi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Error is a sentinel error type. Errors returned by this package and its
// sub-packages wrap one of the sentinels below so that callers can test for
// them with errors.Cause (or errors.Is).
type Error string

func (e Error) Error() string { return string(e) }

// Errors originating from the DFI API.
const (
	// ErrDFIResponse is raised when an error is propagated back from the DFI API.
	ErrDFIResponse = Error("dfi response error")
	// ErrUnreachable indicates a code path that should never be reached.
	ErrUnreachable = Error("unreachable")
)

// Geometry errors.
const (
	ErrLinearRing           = Error("polygon is not a linear ring")
	ErrPolygonNotClosed     = Error("polygon is not closed")
	ErrPolygonUndefined     = Error("polygon is undefined")
	ErrLongitudeOutOfBounds = Error("longitude out of bounds")
	ErrLatitudeOutOfBounds  = Error("latitude out of bounds")
	ErrAltitudeOutOfBounds  = Error("altitude out of bounds")

	ErrBBoxLongitudeMismatch = Error("bbox min longitude is not less than max longitude")
	ErrBBoxLatitudeMismatch  = Error("bbox min latitude is not less than max latitude")
	ErrBBoxValue             = Error("bbox is defined from 4 values")
	ErrBBoxUndefined         = Error("bbox is undefined")
)

// Time range errors.
const (
	ErrTimeRangeOutOfBounds = Error("time range out of bounds")
	ErrTimeRangeMismatch    = Error("time range min is after max")
	ErrTimeRangeUndefined   = Error("time range is undefined")
	ErrTimeZoneUndefined    = Error("time range bound has no time zone")
)

// Filter field errors.
const (
	ErrFilterFieldNameNotInSchema    = Error("filter field name not in schema")
	ErrFilterFieldValue              = Error("invalid filter field value")
	ErrFilterFieldType               = Error("filter field type does not match schema")
	ErrFilterFieldOperationValue     = Error("invalid filter field operation")
	ErrFilterFieldInvalidNullability = Error("filter field nullability does not match schema")
	ErrInputValue                    = Error("invalid input value")
	ErrInputValueOutOfBound          = Error("input value out of bounds")
	ErrInvalidQueryDocument          = Error("invalid query document")
	ErrUnknownReturnType             = Error("unknown return type")
	ErrNotImplemented                = Error("not implemented")
)

// Event stream errors.
const (
	ErrUnknownMessageReceived  = Error("unknown message received")
	ErrNoFinishMessageReceived = Error("stream ended before finish message received, results may not be complete")
	ErrEventsMissed            = Error("events missed")
	ErrNoEventsReceived        = Error("0 events received from DFI API")
)

// RedactedAuthorization replaces the bearer token wherever request headers
// are logged or reported.
const RedactedAuthorization = "Bearer XXX"

// ResponseError describes a non-2xx response from the DFI API. Its Cause is
// ErrDFIResponse.
type ResponseError struct {
	StatusCode int
	Body       string
	URL        string
	Headers    http.Header
	Params     url.Values
	Payload    interface{}
}

// NewResponseError builds a ResponseError, copying the headers and redacting
// the Authorization value.
func NewResponseError(status int, body, u string, headers http.Header, params url.Values, payload interface{}) *ResponseError {
	h := headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("Authorization") != "" {
		h.Set("Authorization", RedactedAuthorization)
	}
	return &ResponseError{
		StatusCode: status,
		Body:       body,
		URL:        u,
		Headers:    h,
		Params:     params,
		Payload:    payload,
	}
}

func (e *ResponseError) Error() string {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "\nSTATUS CODE: %d\n", e.StatusCode)
	fmt.Fprintf(buf, "ERROR: %s\n", e.Body)
	fmt.Fprintf(buf, "URL: %s\n", e.URL)
	fmt.Fprintf(buf, "HEADERS: %s\n", indentJSON(flattenHeader(e.Headers)))
	fmt.Fprintf(buf, "PARAMS: %s\n", indentJSON(flattenValues(e.Params)))
	fmt.Fprintf(buf, "PAYLOAD: %s", indentJSON(e.Payload))
	return buf.String()
}

// Cause lets errors.Cause unwrap a ResponseError to ErrDFIResponse.
func (e *ResponseError) Cause() error { return ErrDFIResponse }

// Unwrap is the errors.Is counterpart of Cause.
func (e *ResponseError) Unwrap() error { return ErrDFIResponse }

// flattenHeader keeps the first value of each header. Keys come out sorted
// because encoding/json sorts map keys.
func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	ret := make(map[string]string, len(h))
	for k := range h {
		ret[k] = h.Get(k)
	}
	return ret
}

func flattenValues(v url.Values) map[string]interface{} {
	if len(v) == 0 {
		return nil
	}
	ret := make(map[string]interface{}, len(v))
	for k, vals := range v {
		if len(vals) == 1 {
			ret[k] = vals[0]
		} else {
			ret[k] = vals
		}
	}
	return ret
}

func indentJSON(v interface{}) string {
	bs, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(bs)
}
