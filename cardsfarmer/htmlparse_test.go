package cardsfarmer

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func mustParse(t *testing.T, doc string) *html.Node {
	t.Helper()
	n, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("html.Parse: %v", err)
	}
	return n
}

func TestParseBadgePageExtractsGame(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<div class="badge_title_stats_content">
			<div id="card_drop_info_gamebadge_440_1_0"></div>
			<div class="progress_info_bold">3 card drops remaining</div>
			<div class="badge_title_stats_playtime">1.5 hrs on record</div>
			You'll receive card drops for this game by playing Team Fortress 2.
		</div>
	</body></html>`)

	games := parseBadgePage(doc, map[uint32]struct{}{}, map[uint32]struct{}{})
	if len(games) != 1 {
		t.Fatalf("got %d games, want 1", len(games))
	}
	g := games[0]
	if g.AppID != 440 {
		t.Errorf("AppID = %d, want 440", g.AppID)
	}
	if g.CardsRemaining != 3 {
		t.Errorf("CardsRemaining = %d, want 3", g.CardsRemaining)
	}
	if g.HoursPlayed != 1.5 {
		t.Errorf("HoursPlayed = %v, want 1.5", g.HoursPlayed)
	}
	if g.Name != "Team Fortress 2" {
		t.Errorf("Name = %q, want %q", g.Name, "Team Fortress 2")
	}
}

func TestParseBadgePageSkipsBlacklisted(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<div class="badge_title_stats_content">
			<div id="card_drop_info_gamebadge_303700_1_0"></div>
			<div class="progress_info_bold">3 card drops remaining</div>
			<div class="badge_title_stats_playtime">1.5 hrs on record</div>
			by playing Some Game.
		</div>
	</body></html>`)

	games := parseBadgePage(doc, map[uint32]struct{}{303700: {}}, map[uint32]struct{}{})
	if len(games) != 0 {
		t.Fatalf("got %d games, want 0 (blacklisted)", len(games))
	}
}

func TestParseBadgePageSkipsZeroCardsWhenNotAllowListed(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<div class="badge_title_stats_content">
			<div id="card_drop_info_gamebadge_440_1_0"></div>
			<div class="progress_info_bold">0 card drops remaining</div>
			<div class="badge_title_stats_playtime">1.5 hrs on record</div>
			by playing Team Fortress 2.
		</div>
	</body></html>`)

	games := parseBadgePage(doc, map[uint32]struct{}{}, map[uint32]struct{}{})
	if len(games) != 0 {
		t.Fatalf("got %d games, want 0 (zero cards, not allow-listed)", len(games))
	}
}

func TestParseGameNameFallback(t *testing.T) {
	text := "You don't have any more drops remaining for Portal 2."
	name, ok := parseGameName(text)
	if !ok {
		t.Fatal("expected name to parse")
	}
	if name != "Portal 2" {
		t.Errorf("name = %q, want Portal 2", name)
	}
}

func TestParseFirstFloatStripsThousandsSeparator(t *testing.T) {
	f, ok := parseFirstFloat("1,234.5 hrs on record")
	if !ok {
		t.Fatal("expected float to parse")
	}
	if f != 1234.5 {
		t.Errorf("got %v, want 1234.5", f)
	}
}

func TestParseLastPageDefaultsToOne(t *testing.T) {
	doc := mustParse(t, `<html><body>no pagination here</body></html>`)
	if got := parseLastPage(doc); got != 1 {
		t.Errorf("parseLastPage = %d, want 1", got)
	}
}

func TestParseLastPageFindsMax(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<a class="pagelink">1</a><a class="pagelink">2</a><a class="pagelink">5</a>
	</body></html>`)
	if got := parseLastPage(doc); got != 5 {
		t.Errorf("parseLastPage = %d, want 5", got)
	}
}
