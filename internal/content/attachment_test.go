package content

import "testing"

func TestSanitizeKeepsOnlyValidImages(t *testing.T) {
	size := 2048.0
	payloads := []AttachmentPayload{
		{Type: "image", ID: "att-1", Data: "aGVsbG8=", MimeType: "image/png", Name: "photo.png", Size: size},
		{Data: "d29ybGQ=", MimeType: "image/jpeg"},
	}

	got := Sanitize(payloads)
	if len(got) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(got))
	}
	if got[0].ID != "att-1" || got[0].Name != "photo.png" {
		t.Errorf("first attachment not preserved: %+v", got[0])
	}
	if got[0].Size == nil || *got[0].Size != size {
		t.Errorf("size not preserved: %+v", got[0].Size)
	}
	if got[1].ID == "" {
		t.Error("missing id should be generated")
	}
	if got[1].Size != nil {
		t.Error("absent size should stay absent")
	}
}

func TestSanitizeDropsMalformedEntries(t *testing.T) {
	tests := []struct {
		name    string
		payload AttachmentPayload
	}{
		{"wrong type", AttachmentPayload{Type: "audio", Data: "aGVsbG8=", MimeType: "audio/mp3"}},
		{"empty data", AttachmentPayload{Data: "   ", MimeType: "image/png"}},
		{"missing data", AttachmentPayload{MimeType: "image/png"}},
		{"missing mime type", AttachmentPayload{Data: "aGVsbG8="}},
		{"data not a string", AttachmentPayload{Data: 42, MimeType: "image/png"}},
		{"mime type not a string", AttachmentPayload{Data: "aGVsbG8=", MimeType: true}},
		{"everything wrong", AttachmentPayload{Type: 1, ID: []string{"x"}, Data: map[string]any{}, Size: "big"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize([]AttachmentPayload{tt.payload}); len(got) != 0 {
				t.Errorf("expected entry to be dropped, got %+v", got)
			}
		})
	}
}

func TestSanitizeNormalizesFields(t *testing.T) {
	payloads := []AttachmentPayload{
		{ID: "  spaced-id  ", Data: "  aGVsbG8=  ", MimeType: " image/png ", Name: "   ", Size: "not a number"},
	}

	got := Sanitize(payloads)
	if len(got) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(got))
	}
	if got[0].ID != "spaced-id" || got[0].Data != "aGVsbG8=" || got[0].MimeType != "image/png" {
		t.Errorf("fields not trimmed: %+v", got[0])
	}
	if got[0].Name != "" {
		t.Errorf("blank name should be dropped, got %q", got[0].Name)
	}
	if got[0].Size != nil {
		t.Error("non-numeric size should be dropped")
	}
}

func TestSanitizeValidSubsetOfMixedBatch(t *testing.T) {
	payloads := []AttachmentPayload{
		{Data: "Zmlyc3Q=", MimeType: "image/png"},
		{Type: "video", Data: "bm9wZQ==", MimeType: "video/mp4"},
		{Data: "", MimeType: "image/gif"},
		{Data: "c2Vjb25k", MimeType: "image/webp"},
	}

	got := Sanitize(payloads)
	if len(got) != 2 {
		t.Fatalf("expected valid subset of 2, got %d", len(got))
	}
	if got[0].Data != "Zmlyc3Q=" || got[1].Data != "c2Vjb25k" {
		t.Errorf("order not preserved: %+v", got)
	}
}
