package grpc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/example/coursecheckout/pkg/checkout"
	"github.com/example/coursecheckout/pkg/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages are google.protobuf.Struct values with the same field names as the
// JSON API. File contents travel base64 encoded under file.data.

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(v *structpb.Value) *string {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil
	}
	return &s.StringValue
}

func timePtr(v *structpb.Value) (*time.Time, error) {
	s := stringPtr(v)
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeOrderInput(in checkout.OrderInput) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"name":        in.Name,
		"email":       in.Email,
		"phone":       in.Phone,
		"courseId":    in.CourseID,
		"courseTitle": in.CourseTitle,
		"price":       in.Price,
	})
}

func decodeOrderInput(s *structpb.Struct) checkout.OrderInput {
	f := s.GetFields()
	return checkout.OrderInput{
		Name:        f["name"].GetStringValue(),
		Email:       f["email"].GetStringValue(),
		Phone:       f["phone"].GetStringValue(),
		CourseID:    f["courseId"].GetStringValue(),
		CourseTitle: f["courseTitle"].GetStringValue(),
		Price:       f["price"].GetNumberValue(),
	}
}

func encodeProofInput(in checkout.ProofInput) (*structpb.Struct, error) {
	m := map[string]any{
		"orderId": in.OrderID,
		"txnId":   in.TxnID,
		"file":    nil,
	}
	if in.File != nil {
		data, err := io.ReadAll(in.File.Body)
		if err != nil {
			return nil, err
		}
		m["file"] = map[string]any{
			"filename":    in.File.Filename,
			"contentType": in.File.ContentType,
			"data":        data,
		}
	}
	return structpb.NewStruct(m)
}

func decodeProofInput(s *structpb.Struct) (checkout.ProofInput, error) {
	f := s.GetFields()
	in := checkout.ProofInput{
		OrderID: f["orderId"].GetStringValue(),
		TxnID:   f["txnId"].GetStringValue(),
	}
	if file := f["file"].GetStructValue(); file != nil {
		ff := file.GetFields()
		data, err := base64.StdEncoding.DecodeString(ff["data"].GetStringValue())
		if err != nil {
			return in, fmt.Errorf("invalid file data: %w", err)
		}
		in.File = &checkout.File{
			Filename:    ff["filename"].GetStringValue(),
			ContentType: ff["contentType"].GetStringValue(),
			Body:        bytes.NewReader(data),
		}
	}
	return in, nil
}

func encodeProofResult(res checkout.ProofResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"orderId":  res.OrderID,
		"proofUrl": nullable(res.ProofURL),
	})
}

func decodeProofResult(s *structpb.Struct) checkout.ProofResult {
	f := s.GetFields()
	return checkout.ProofResult{
		OrderID:  f["orderId"].GetStringValue(),
		ProofURL: stringPtr(f["proofUrl"]),
	}
}

func encodeOrder(o *models.Order) (*structpb.Struct, error) {
	m := map[string]any{
		"id":                 o.ID,
		"name":               o.Name,
		"email":              o.Email,
		"phone":              o.Phone,
		"courseId":           o.CourseID,
		"courseTitle":        o.CourseTitle,
		"price":              o.Price,
		"status":             string(o.Status),
		"createdAt":          o.CreatedAt.Format(time.RFC3339Nano),
		"paymentSubmittedAt": nil,
	}
	if o.PaymentSubmittedAt != nil {
		m["paymentSubmittedAt"] = o.PaymentSubmittedAt.Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(m)
}

func decodeOrder(s *structpb.Struct) (*models.Order, error) {
	f := s.GetFields()
	o := &models.Order{
		ID:          f["id"].GetStringValue(),
		Name:        f["name"].GetStringValue(),
		Email:       f["email"].GetStringValue(),
		Phone:       f["phone"].GetStringValue(),
		CourseID:    f["courseId"].GetStringValue(),
		CourseTitle: f["courseTitle"].GetStringValue(),
		Price:       f["price"].GetNumberValue(),
		Status:      models.OrderStatus(f["status"].GetStringValue()),
	}
	created, err := timePtr(f["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt: %w", err)
	}
	if created != nil {
		o.CreatedAt = *created
	}
	if o.PaymentSubmittedAt, err = timePtr(f["paymentSubmittedAt"]); err != nil {
		return nil, fmt.Errorf("invalid paymentSubmittedAt: %w", err)
	}
	return o, nil
}
