package protocol

// Response lines. A response is a single line with no headers and no body
// framing; a successful GET instead carries the observation JSON as the line.
const (
	StatusOK            = "200 OK"
	StatusBadRequest    = "400 Bad Request"
	StatusNullServerID  = "400 Null ServerId"
	StatusNullStationID = "400 Null StationId"
	StatusJSONError     = "400 JSON Error"
	StatusNotFound      = "404 Data Not Found"
)
