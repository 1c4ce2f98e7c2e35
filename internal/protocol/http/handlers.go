package http

// Home is the fixed response for "/".
func Home() Response {
	return Response{
		Status:      StatusOK,
		ContentType: ContentTypeHTML,
		Body:        []byte("<h1>Welcome home!</h1>"),
	}
}

// About is the fixed response for "/about".
func About() Response {
	return Response{
		Status:      StatusOK,
		ContentType: ContentTypeHTML,
		Body:        []byte("<h1>About us</h1>"),
	}
}

// Constant returns a handler that always answers 200 with body.
func Constant(contentType string, body []byte) HandlerFunc {
	b := append([]byte(nil), body...)
	return func() Response {
		return Response{Status: StatusOK, ContentType: contentType, Body: b}
	}
}
