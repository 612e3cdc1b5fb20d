package handler

// DetailResponse is the body of plain acknowledgements and errors
type DetailResponse struct {
	Detail string `json:"detail"`
}

func NewDetailResponse(detail string) *DetailResponse {
	return &DetailResponse{Detail: detail}
}
