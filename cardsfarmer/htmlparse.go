package cardsfarmer

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/k64z/cardfarmer/game"
)

var (
	reFirstInt   = regexp.MustCompile(`\d+`)
	reFirstFloat = regexp.MustCompile(`[0-9.,]+`)
)

// hasClass reports whether n carries class among its space-separated class
// attribute tokens.
func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, tok := range strings.Fields(a.Val) {
			if tok == class {
				return true
			}
		}
	}
	return false
}

// attr returns the value of the named attribute, if present.
func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// findAllByClass walks the tree rooted at n and returns every element node
// carrying the given class.
func findAllByClass(n *html.Node, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && hasClass(node, class) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// findFirstByClass returns the first descendant carrying class, if any.
func findFirstByClass(n *html.Node, class string) (*html.Node, bool) {
	nodes := findAllByClass(n, class)
	if len(nodes) == 0 {
		return nil, false
	}
	return nodes[0], true
}

// findFirstWithID returns the first descendant (including n) carrying any
// "id" attribute.
func findFirstWithID(n *html.Node) (string, bool) {
	var result string
	found := false
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if found {
			return
		}
		if node.Type == html.ElementNode {
			if id, ok := attr(node, "id"); ok && id != "" {
				result = id
				found = true
				return
			}
		}
		for c := node.FirstChild; c != nil && !found; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return result, found
}

// textContent concatenates all text node content under n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// parseAppIDFromDropDialogID extracts the app id from the fifth
// underscore-separated segment of a drop-dialog element's id attribute.
func parseAppIDFromDropDialogID(id string) (uint32, bool) {
	parts := strings.Split(id, "_")
	if len(parts) < 5 {
		return 0, false
	}
	n, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// parseFirstInt returns the first run of decimal digits in s.
func parseFirstInt(s string) (int, bool) {
	m := reFirstInt.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseFirstFloat returns the first run of digits/dots/commas in s,
// interpreting commas as thousands separators.
func parseFirstFloat(s string) (float32, bool) {
	m := reFirstFloat.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.ReplaceAll(m, ",", "")
	f, err := strconv.ParseFloat(m, 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}

// parseGameName extracts the title between the " by playing " marker and the
// final period, falling back to the "no more drops remaining for" phrasing
// the badge page uses once a title has no further drops.
func parseGameName(text string) (string, bool) {
	const byPlaying = " by playing "
	const noDrops = "You don't have any more drops remaining for "

	if idx := strings.Index(text, byPlaying); idx >= 0 {
		start := idx + len(byPlaying)
		if end := strings.LastIndex(text, "."); end > start {
			return strings.TrimSpace(text[start:end]), true
		}
	}
	if idx := strings.Index(text, noDrops); idx >= 0 {
		start := idx + len(noDrops)
		if end := strings.LastIndex(text, "."); end > start {
			return strings.TrimSpace(text[start:end]), true
		}
	}
	return "", false
}

// parseBadgePage extracts candidate games from a parsed badge page, applying
// the blacklist/allow-list/zero-cards skip rules. Extraction is best effort:
// a row with a missing node is skipped without aborting the page.
func parseBadgePage(doc *html.Node, blacklist, allowList map[uint32]struct{}) []*game.Game {
	var games []*game.Game

	for _, row := range findAllByClass(doc, "badge_title_stats_content") {
		id, ok := findFirstWithID(row)
		if !ok {
			continue
		}
		appID, ok := parseAppIDFromDropDialogID(id)
		if !ok {
			continue
		}
		if _, blocked := blacklist[appID]; blocked {
			continue
		}

		progressNode, ok := findFirstByClass(row, "progress_info_bold")
		if !ok {
			continue
		}
		cardsRemaining, ok := parseFirstInt(textContent(progressNode))
		if !ok {
			continue
		}

		_, untrusted := allowList[appID]
		if cardsRemaining == 0 && !untrusted {
			continue
		}
		if cardsRemaining == 0 && untrusted {
			if earnedNode, ok := findFirstByClass(row, "card_earned"); ok {
				if earned, ok := parseFirstInt(textContent(earnedNode)); ok && earned > 0 {
					continue
				}
			}
		}

		playtimeNode, ok := findFirstByClass(row, "badge_title_stats_playtime")
		if !ok {
			continue
		}
		hours, ok := parseFirstFloat(textContent(playtimeNode))
		if !ok {
			continue
		}

		name, ok := parseGameName(textContent(row))
		if !ok {
			continue
		}

		games = append(games, &game.Game{
			AppID:          appID,
			Name:           name,
			HoursPlayed:    hours,
			CardsRemaining: uint16(cardsRemaining),
		})
	}

	return games
}

// parseLastPage finds the highest pagelink page number in a badge page's
// pagination controls, defaulting to 1 when no pagination is present.
func parseLastPage(doc *html.Node) int {
	last := 1
	for _, n := range findAllByClass(doc, "pagelink") {
		if v, ok := parseFirstInt(textContent(n)); ok && v > last {
			last = v
		}
	}
	return last
}

// parseCardsRemaining extracts the remaining-card count from a per-game card
// page, used by ShouldFarm to resample a single game's progress.
func parseCardsRemaining(doc *html.Node) (int, bool) {
	node, ok := findFirstByClass(doc, "progress_info_bold")
	if !ok {
		return 0, false
	}
	return parseFirstInt(textContent(node))
}
