package utils

// ResponseData is the envelope every REST endpoint responds with.
type ResponseData struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded panics on error so the recovery middleware can translate
// typed errors into their HTTP status.
func PanicIfNeeded(err any) {
	if err != nil {
		panic(err)
	}
}
