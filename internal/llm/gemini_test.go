package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

func TestToContentsFoldsToolResults(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "book friday off"},
		{Role: RoleModel, ToolCalls: []ToolCall{
			{ID: "1", Name: "get_workday_profile"},
			{ID: "2", Name: "get_tenure"},
		}},
		{Role: RoleTool, ToolName: "get_workday_profile", ToolCallID: "1", Result: map[string]any{"success": true}},
		{Role: RoleTool, ToolName: "get_tenure", ToolCallID: "2", Result: map[string]any{"success": true}},
		{Role: RoleModel, Content: "Done."},
	}

	got := toContents(history)
	if len(got) != 4 {
		t.Fatalf("got %d contents, want 4", len(got))
	}
	if got[1].Role != string(genai.RoleModel) || len(got[1].Parts) != 2 {
		t.Fatalf("model turn = %+v", got[1])
	}
	results := got[2]
	if results.Role != string(genai.RoleUser) || len(results.Parts) != 2 {
		t.Fatalf("tool results not folded: %+v", results)
	}
	if results.Parts[1].FunctionResponse.Name != "get_tenure" || results.Parts[1].FunctionResponse.ID != "2" {
		t.Fatalf("unexpected function response %+v", results.Parts[1].FunctionResponse)
	}
}

func TestFromResponseSkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "Here is "},
			{Text: "your answer."},
			{FunctionCall: &genai.FunctionCall{Name: "get_tenure", Args: map[string]any{}}},
		}},
	}}}

	got := fromResponse(resp)
	want := &Response{
		Text:      "Here is your answer.",
		ToolCalls: []ToolCall{{Name: "get_tenure", Args: map[string]any{}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fromResponse mismatch (-want +got):\n%s", diff)
	}
	if empty := fromResponse(&genai.GenerateContentResponse{}); empty.Text != "" || empty.ToolCalls != nil {
		t.Fatalf("empty response = %+v", empty)
	}
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(&Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"dates": {Type: "array", Items: &Schema{Type: "string"}},
			"hours": {Type: "number"},
		},
		Required: []string{"dates"},
	})
	if s.Type != genai.TypeObject || s.Properties["dates"].Items.Type != genai.TypeString || s.Properties["hours"].Type != genai.TypeNumber {
		t.Fatalf("unexpected schema %+v", s)
	}
	if toGenaiSchema(nil).Type != genai.TypeObject {
		t.Fatal("nil schema should become an empty object")
	}
}

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("wrap: %w", ErrRateLimited), true},
		{errors.New("Error 429, Message: Resource has been exhausted"), true},
		{errors.New("RESOURCE_EXHAUSTED"), true},
		{errors.New("Quota exceeded for metric"), true},
		{errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		if got := IsRateLimit(tt.err); got != tt.want {
			t.Errorf("IsRateLimit(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
