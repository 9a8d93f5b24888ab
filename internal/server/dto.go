package server

// UploadRequest carries a photo as a base64 payload, optionally framed as a
// data URI. Multipart uploads use the "photo" form field instead.
type UploadRequest struct {
	ImageBase64 string `json:"image_base64" validate:"required"`
}

// UploadResponse is the extraction result for one photo.
type UploadResponse struct {
	Tokens        []string `json:"ocr_tokens"`
	VariantName   string   `json:"best_variant_name"`
	OCRConfidence float64  `json:"ocr_confidence"`
	Colors        []string `json:"colors"`
	Shape         string   `json:"shape"`
	CroppedBase64 string   `json:"cropped_image_base64"`
	Source        string   `json:"detection_source"`
}

// MatchRequest asks for catalog candidates given extracted attributes.
type MatchRequest struct {
	Tokens []string `json:"ocr_tokens"`
	Colors []string `json:"colors" validate:"required,min=1"`
	Shape  string   `json:"shape" validate:"required"`
}

// CandidateDTO is one ranked identification with its clinical metadata.
type CandidateDTO struct {
	Name          string   `json:"name"`
	Symptoms      string   `json:"symptoms"`
	Precautions   string   `json:"precautions"`
	SideEffects   string   `json:"side_effects"`
	Score         *float64 `json:"score,omitempty"`
	MatchedSide   string   `json:"matched_side,omitempty"`
	LowConfidence bool     `json:"low_confidence"`
	PhotoBase64   string   `json:"reference_image_base64,omitempty"`
}

// MatchResponse is the ranked candidate list.
type MatchResponse struct {
	Candidates []CandidateDTO `json:"candidates"`
	Degraded   bool           `json:"degraded"`
}

// StatusResponse reports process health details.
type StatusResponse struct {
	Status       string `json:"status"`
	CatalogSize  int    `json:"catalog_size"`
	DetectorWarm bool   `json:"detector_warm"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
