package server

import (
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"pillscan/internal/detect"
	"pillscan/internal/imageio"
	"pillscan/internal/match"
)

func (s *Server) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Status:       "ok",
		CatalogSize:  s.catalog.Len(),
		DetectorWarm: s.pipe.Warmup() == nil,
	})
}

// handleUpload extracts attributes from one photo. The photo arrives either
// as a multipart "photo" field or as a base64 (optionally data-URI) JSON
// body.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	data, err := s.photoBytes(c)
	if err != nil {
		return badRequest(c, "BadUpload", err.Error())
	}

	res, err := s.pipe.Process(data)
	if err != nil {
		return s.pipelineError(c, err)
	}

	return c.JSON(UploadResponse{
		Tokens:        emptyIfNil(res.Tokens),
		VariantName:   res.VariantName,
		OCRConfidence: res.OCRConfidence,
		Colors:        emptyIfNil(res.Colors),
		Shape:         res.Shape,
		CroppedBase64: base64.StdEncoding.EncodeToString(res.CroppedJPEG),
		Source:        string(res.Source),
	})
}

// handleMatch ranks catalog candidates for already-extracted attributes.
// Splitting extraction and matching lets the client confirm or correct the
// detected colors and shape before committing to a lookup.
func (s *Server) handleMatch(c *fiber.Ctx) error {
	var req MatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "BadRequest", "malformed JSON body")
	}
	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, "BadRequest", err.Error())
	}

	result, err := s.matcher.Match(req.Tokens, req.Colors, req.Shape)
	if err != nil {
		return s.matchError(c, err)
	}

	resp := MatchResponse{Candidates: []CandidateDTO{}, Degraded: result.Degraded}
	for _, cand := range result.Candidates {
		dto := CandidateDTO{
			Name:          cand.Record.GenericName,
			Symptoms:      cand.Record.Indications,
			Precautions:   cand.Record.Precautions,
			SideEffects:   cand.Record.SideEffects,
			MatchedSide:   string(cand.Side),
			LowConfidence: cand.LowConfidence,
		}
		if cand.HasScore {
			score := cand.Score
			dto.Score = &score
		}
		if b, ok := s.photos.Lookup(cand.Record.BillingCode); ok {
			dto.PhotoBase64 = base64.StdEncoding.EncodeToString(b)
		}
		resp.Candidates = append(resp.Candidates, dto)
	}
	return c.JSON(resp)
}

func (s *Server) photoBytes(c *fiber.Ctx) ([]byte, error) {
	if file, err := c.FormFile("photo"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return buf, nil
	}

	var req UploadRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, errors.New("expected multipart photo or JSON image_base64")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	payload := req.ImageBase64
	if i := strings.Index(payload, ","); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.New("image_base64 is not valid base64")
	}
	return data, nil
}

func (s *Server) pipelineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, imageio.ErrDecode):
		s.logFail(c, err, "decode")
		return badRequest(c, "ImageDecodeError", "could not decode the uploaded image")
	case errors.Is(err, detect.ErrExtractionFailed):
		s.logFail(c, err, "detect")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorResponse{
			Error:   "ExtractionFailed",
			Message: "could not find a pill in the photo",
		})
	default:
		s.log.WithError(err).Error("pipeline failed")
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Error: "Internal", Message: "internal error",
		})
	}
}

func badRequest(c *fiber.Ctx, code, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: code, Message: msg})
}

func (s *Server) logFail(c *fiber.Ctx, err error, stage string) {
	s.log.WithError(err).WithFields(logrus.Fields{
		"path":  c.Path(),
		"stage": stage,
	}).Warn("request failed")
}

func (s *Server) matchError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, match.ErrNoAttributeMatch):
		s.logFail(c, err, "match")
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{
			Error:   "NoAttributeMatch",
			Message: "no drug matches this color/shape combination",
		})
	case errors.Is(err, match.ErrNeedsRetake):
		s.logFail(c, err, "match")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorResponse{
			Error:   "NeedsRetake",
			Message: "match confidence too low, retake the photo with better lighting",
		})
	default:
		s.log.WithError(err).Error("match failed")
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Error: "Internal", Message: "internal error",
		})
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
