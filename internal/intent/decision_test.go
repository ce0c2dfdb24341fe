package intent

import (
	"errors"
	"testing"
)

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                     `{"a":1}`,
		"```json\n{\"a\":1}\n```":     `{"a":1}`,
		"```\n{\"a\":1}\n```":         `{"a":1}`,
		"  ```JSON\n{\"a\":1}```  \n": `{"a":1}`,
		"```{\"a\":1}```":             `{"a":1}`,
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Errorf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	_, err := Decode(`{"is_related":true,"is_visualization":true,"needs_clarification":false,"confidence":0.9}`)
	if err == nil {
		t.Error("want error for unknown key")
	}
}

func TestDecode_RejectsNonBoolean(t *testing.T) {
	if _, err := Decode(`{"is_related":"yes","is_visualization":true,"needs_clarification":false}`); err == nil {
		t.Error("want error for string boolean")
	}
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	if _, err := Decode(`{"is_related":true,"is_visualization":true,"needs_clarification":false} {}`); err == nil {
		t.Error("want error for trailing object")
	}
}

func TestDecode_MissingKey(t *testing.T) {
	_, err := Decode(`{"is_visualization":true,"needs_clarification":false}`)
	if !errors.Is(err, errMissingKey) {
		t.Errorf("err = %v, want errMissingKey", err)
	}
}

func TestDecode_BlankClarificationIsNil(t *testing.T) {
	d, err := Decode(`{"is_related":true,"is_visualization":true,"needs_clarification":true,"clarification_message":"  "}`)
	if err != nil {
		t.Fatal(err)
	}
	if d.ClarificationMessage != nil {
		t.Errorf("ClarificationMessage = %q, want nil", *d.ClarificationMessage)
	}
}

func TestFallback(t *testing.T) {
	d := Fallback(errors.New("boom"))
	if !d.IsRelated || !d.IsVisualization || d.NeedsClarification || d.Rationale != "classification failed: boom" {
		t.Errorf("Fallback = %+v", d)
	}
}
