package belief

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkTextEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", " \n\t\n "} {
		if chunks := ChunkText(input, 100, 20); chunks != nil {
			t.Errorf("ChunkText(%q) should be nil, got %d chunks", input, len(chunks))
		}
	}
}

func TestChunkTextShortInput(t *testing.T) {
	chunks := ChunkText("hello world", 100, 20)
	if len(chunks) != 1 {
		t.Fatalf("Short input should yield 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("Chunk should equal the input, got %q", chunks[0])
	}
}

func TestChunkTextOverlapCarriesContext(t *testing.T) {
	// Distinct numbered tokens make overlap verifiable.
	var sb strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&sb, "w%03d ", i)
	}

	chunks := ChunkText(sb.String(), 300, 60)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 300 {
			t.Errorf("Chunk %d has %d runes, exceeds size 300", i, n)
		}
	}

	// The tail of each chunk must reappear in the next one.
	for i := 0; i < len(chunks)-1; i++ {
		words := strings.Fields(chunks[i])
		last := words[len(words)-1]
		if !strings.Contains(chunks[i+1], last) {
			t.Errorf("Chunk %d should carry %q over from chunk %d", i+1, last, i)
		}
	}

	// Every token must land in at least one chunk.
	joined := strings.Join(chunks, " ")
	for i := 0; i < 400; i++ {
		token := fmt.Sprintf("w%03d", i)
		if !strings.Contains(joined, token) {
			t.Fatalf("Token %s was dropped during chunking", token)
		}
	}
}

func TestChunkTextPrefersParagraphBreak(t *testing.T) {
	paraA := strings.Repeat("alpha beta gamma delta. ", 7) // ~168 chars
	paraB := strings.Repeat("epsilon zeta eta theta. ", 7)
	text := strings.TrimSpace(paraA) + "\n\n" + strings.TrimSpace(paraB)

	chunks := ChunkText(text, 200, 20)
	if len(chunks) < 2 {
		t.Fatalf("Expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != strings.TrimSpace(paraA) {
		t.Errorf("First chunk should cut at the paragraph break:\n got %q\nwant %q",
			chunks[0], strings.TrimSpace(paraA))
	}
}

func TestChunkTextRuneSafe(t *testing.T) {
	text := strings.Repeat("データ分析は楽しい。", 50)
	chunks := ChunkText(text, 37, 5)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("Chunk %d is not valid UTF-8: %q", i, chunk)
		}
	}
}

func TestChunkTextDefaults(t *testing.T) {
	text := strings.Repeat("sentence about the data. ", 200) // ~5000 chars
	chunks := ChunkText(text, 0, -1)
	if len(chunks) < 2 {
		t.Fatalf("Default sizing should split a 5000-char document, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > DefaultChunkSize {
			t.Errorf("Chunk %d has %d runes, exceeds default size", i, n)
		}
	}
}

func TestSupportedDocExt(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"notes.txt", true},
		{"README.md", true},
		{"guide.markdown", true},
		{"report.html", true},
		{"page.HTM", true},
		{"data.csv", false},
		{"main.go", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := supportedDocExt(tt.path); got != tt.want {
			t.Errorf("supportedDocExt(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestExtractDocumentTextPlain(t *testing.T) {
	text, err := ExtractDocumentText("notes.txt", []byte("plain text stays as is"))
	if err != nil {
		t.Fatalf("ExtractDocumentText failed: %v", err)
	}
	if text != "plain text stays as is" {
		t.Errorf("Plain text should pass through, got %q", text)
	}
}

func TestExtractDocumentTextHTML(t *testing.T) {
	input := `<html><head>
		<style>p { color: red }</style>
		<script>var tracked = true;</script>
	</head><body>
		<h1>Quarterly Report</h1>
		<p>Revenue grew <b>12%</b> in Q3.</p>
		<noscript>enable js</noscript>
	</body></html>`

	text, err := ExtractDocumentText("report.html", []byte(input))
	if err != nil {
		t.Fatalf("ExtractDocumentText failed: %v", err)
	}

	for _, want := range []string{"Quarterly Report", "Revenue grew", "12%", "in Q3."} {
		if !strings.Contains(text, want) {
			t.Errorf("Extracted text should contain %q:\n%s", want, text)
		}
	}
	for _, banned := range []string{"tracked", "color: red", "enable js", "<p>", "<b>"} {
		if strings.Contains(text, banned) {
			t.Errorf("Extracted text should not contain %q:\n%s", banned, text)
		}
	}
}
