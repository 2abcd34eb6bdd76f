package schedule

import (
	"strings"
	"testing"
)

func TestSanitizeTitle_StripsScriptBlocks(t *testing.T) {
	result := SanitizeTitle("<script>alert(1)</script>Team Meeting")
	if result != "Team Meeting" {
		t.Errorf("Expected 'Team Meeting', got %q", result)
	}
}

func TestSanitizeTitle_StripsStyleBlocks(t *testing.T) {
	result := SanitizeTitle("<style>body{display:none}</style>Board Meeting")
	if result != "Board Meeting" {
		t.Errorf("Expected 'Board Meeting', got %q", result)
	}
}

func TestSanitizeTitle_StripsTags(t *testing.T) {
	result := SanitizeTitle("<b>Practice</b> at <i>the gym</i>")
	if result != "Practice at the gym" {
		t.Errorf("Expected 'Practice at the gym', got %q", result)
	}
}

func TestSanitizeTitle_PreservesAmpersand(t *testing.T) {
	result := SanitizeTitle("A & B")
	if result != "A & B" {
		t.Errorf("Expected 'A & B', got %q", result)
	}

	result = SanitizeTitle("A &amp; B")
	if result != "A & B" {
		t.Errorf("Expected decoded 'A & B', got %q", result)
	}
}

func TestSanitizeTitle_DoesNotDecodeAngleBrackets(t *testing.T) {
	result := SanitizeTitle("&lt;script&gt;alert(1)&lt;/script&gt;")
	if strings.Contains(result, "<") || strings.Contains(result, ">") {
		t.Errorf("Angle bracket entities must not be decoded, got %q", result)
	}
}

func TestSanitizeTitle_CollapsesWhitespace(t *testing.T) {
	result := SanitizeTitle("  Weekly   \n\t  Standup  ")
	if result != "Weekly Standup" {
		t.Errorf("Expected 'Weekly Standup', got %q", result)
	}
}

func TestSanitizeTitle_TruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("a", 300)
	result := SanitizeTitle(long)

	runes := []rune(result)
	if len(runes) != 201 {
		t.Errorf("Expected 201 runes (200 + ellipsis), got %d", len(runes))
	}
	if !strings.HasSuffix(result, "…") {
		t.Errorf("Expected truncated title to end with ellipsis, got %q", result[len(result)-10:])
	}
}

func TestSanitizeTitle_EmptyFallsBackToDefault(t *testing.T) {
	for _, input := range []string{"", "   ", "<div></div>", "<script>x</script>"} {
		if result := SanitizeTitle(input); result != DefaultTitle {
			t.Errorf("SanitizeTitle(%q): expected default title, got %q", input, result)
		}
	}
}

func TestSanitizeTitleForEmail_EscapesHTML(t *testing.T) {
	result := SanitizeTitleForEmail("Dinner & Drinks")
	if result != "Dinner &amp; Drinks" {
		t.Errorf("Expected 'Dinner &amp; Drinks', got %q", result)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"":                StatusConfirmed,
		"CONFIRMED":       StatusConfirmed,
		"Cancelled":       StatusCancelled,
		"Event CANCELED":  StatusCancelled,
		"tentative":       StatusTentative,
		"Maybe happening": StatusTentative,
		"scheduled":       StatusConfirmed,
	}

	for input, expected := range cases {
		if got := NormalizeStatus(input); got != expected {
			t.Errorf("NormalizeStatus(%q): expected %q, got %q", input, expected, got)
		}
	}
}
