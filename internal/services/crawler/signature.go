package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hydrafrog/hydrafrog/internal/models"
)

const (
	bodyTopLevelLimit = 30
	domSkeletonLimit  = 150
	classTokenLimit   = 15
	classTokenMaxLen  = 20
	classTokenMinLen  = 2
)

var (
	landmarkTags = []string{"header", "nav", "main", "footer", "section", "article", "form"}
	formTags     = []string{"input", "button", "select", "textarea"}

	allDigits = regexp.MustCompile(`^[0-9]+$`)
	hexLike   = regexp.MustCompile(`^[a-f0-9]{8,}$`)
)

// ComputeSignature derives the structural fingerprint of an HTML document
// and its hash. The signature depends only on document structure, never on
// text content, so pages rendered from the same template hash identically.
func ComputeSignature(doc *goquery.Document) (string, *models.TemplateSignature, error) {
	// Pre-clean: these subtrees vary per page without changing layout.
	doc.Find("script, style, noscript, svg, iframe").Remove()

	body := doc.Find("body").First()

	sig := &models.TemplateSignature{
		BodyTopLevelTags:  []string{},
		LandmarkCounts:    map[string]int{},
		FormElements:      map[string]int{},
		DOMSkeletonSample: []string{},
		ClassTokensSample: []string{},
	}

	body.Children().EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= bodyTopLevelLimit {
			return false
		}
		sig.BodyTopLevelTags = append(sig.BodyTopLevelTags, goquery.NodeName(s))
		return true
	})

	for _, tag := range landmarkTags {
		if n := doc.Find(tag).Length(); n > 0 {
			sig.LandmarkCounts[tag] = n
		}
	}
	for _, tag := range formTags {
		if n := doc.Find(tag).Length(); n > 0 {
			sig.FormElements[tag] = n
		}
	}

	sig.LinkStats.TotalLinks = doc.Find("a[href]").Length()

	body.Find("*").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= domSkeletonLimit {
			return false
		}
		sig.DOMSkeletonSample = append(sig.DOMSkeletonSample, tagPathFromBody(s))
		return true
	})

	sig.ClassTokensSample = sampleClassTokens(doc)

	canonical, err := sig.CanonicalJSON()
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize signature: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), sig, nil
}

// tagPathFromBody builds the ">"-joined tag path from body down to the
// element, body excluded.
func tagPathFromBody(s *goquery.Selection) string {
	var tags []string
	for cur := s; cur.Length() > 0; cur = cur.Parent() {
		name := goquery.NodeName(cur)
		if name == "body" || name == "html" || name == "#document" {
			break
		}
		tags = append(tags, name)
	}
	// Reverse into document order.
	for i, j := 0, len(tags)-1; i < j; i, j = i+1, j-1 {
		tags[i], tags[j] = tags[j], tags[i]
	}
	return strings.Join(tags, ">")
}

// sampleClassTokens collects up to classTokenLimit unique class tokens in
// document order, then sorts them. Tokens that look content-generated
// (digits, long hex hashes, underscore-prefixed) are rejected.
func sampleClassTokens(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	tokens := []string{}

	doc.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		for _, raw := range strings.Fields(class) {
			token := strings.ToLower(strings.TrimSpace(raw))
			if !keepClassToken(token) {
				continue
			}
			if len(token) > classTokenMaxLen {
				token = token[:classTokenMaxLen]
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			tokens = append(tokens, token)
			if len(tokens) >= classTokenLimit {
				return false
			}
		}
		return true
	})

	sort.Strings(tokens)
	return tokens
}

func keepClassToken(token string) bool {
	if len(token) < classTokenMinLen {
		return false
	}
	if strings.HasPrefix(token, "_") {
		return false
	}
	if allDigits.MatchString(token) {
		return false
	}
	if hexLike.MatchString(token) {
		return false
	}
	return true
}
