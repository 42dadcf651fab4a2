package validation

import (
	"strings"
	"testing"
)

type patchDTO struct {
	Secret     string `validate:"required"`
	HolderName string
}

type requestDTO struct {
	Patches []patchDTO `validate:"required,min=1,max=100,dive"`
}

func TestStruct_Valid(t *testing.T) {
	req := requestDTO{Patches: []patchDTO{{Secret: "tk-1"}}}
	if errs := Struct(req); errs != nil {
		t.Fatalf("Struct() = %v, want nil", errs)
	}
}

func TestStruct_EmptyBatch(t *testing.T) {
	errs := Struct(requestDTO{})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if errs[0].Field != "patches" {
		t.Errorf("Field = %q, want %q", errs[0].Field, "patches")
	}
	if errs[0].Message != "is required" {
		t.Errorf("Message = %q", errs[0].Message)
	}
}

func TestStruct_NestedFieldPath(t *testing.T) {
	req := requestDTO{Patches: []patchDTO{{Secret: "ok"}, {}}}
	errs := Struct(req)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if errs[0].Field != "patches[1].secret" {
		t.Errorf("Field = %q, want %q", errs[0].Field, "patches[1].secret")
	}
}

func TestStruct_MaxItems(t *testing.T) {
	req := requestDTO{Patches: make([]patchDTO, 101)}
	for i := range req.Patches {
		req.Patches[i].Secret = "tk"
	}
	errs := Struct(req)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !strings.Contains(errs[0].Message, "at most 100") {
		t.Errorf("Message = %q", errs[0].Message)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"present", "abc", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequired("field", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequired(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUTF8(t *testing.T) {
	if err := ValidateUTF8("name", "Erika Müller 世界"); err != nil {
		t.Errorf("valid UTF-8 rejected: %v", err)
	}
	if err := ValidateUTF8("name", string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid UTF-8 accepted")
	}
}

func TestValidateMaxLength(t *testing.T) {
	if err := ValidateMaxLength("name", strings.Repeat("界", 10), 10); err != nil {
		t.Errorf("10 runes rejected at max 10: %v", err)
	}
	if err := ValidateMaxLength("name", strings.Repeat("a", 11), 10); err == nil {
		t.Error("11 runes accepted at max 10")
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	if c.HasErrors() {
		t.Error("fresh collector has errors")
	}
	c.Add(nil)
	if c.HasErrors() {
		t.Error("nil add recorded an error")
	}
	c.Add(&ValidationError{Field: "a", Message: "is required"})
	c.AddAll([]ValidationError{{Field: "b", Message: "is invalid"}})
	if got := len(c.Errors()); got != 2 {
		t.Errorf("len(Errors()) = %d, want 2", got)
	}
}
