// Package tracking instruments rendered campaign bodies with an open pixel
// and click-through redirects. The receivers behind those URLs live in a
// separate service; this package only builds the URLs they accept.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"campaignd/internal/util"
)

const (
	OpenPath  = "/t/open"
	ClickPath = "/t/click"

	ParamTrackingID  = "tid"
	ParamCampaignID  = "cid"
	ParamRecipientID = "rid"
	ParamURL         = "url"
	ParamSignature   = "sig"
)

var (
	// Group 1 is the anchor up to its href value, group 2 the value itself.
	// Earlier attributes are skipped whole, so a '>' inside a quoted value
	// does not end the tag.
	anchorHref = regexp.MustCompile(`(?i)(<a(?:\s+[^\s"'>=/]+(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'>]+))?)*?\s+href\s*=\s*)("[^"]*"|'[^']*'|[^\s"'>]+)`)
	bodyClose  = regexp.MustCompile(`(?i)</body\s*>`)
)

type Instrumentor struct {
	BaseURL    string
	SigningKey []byte
	NewID      func() string
}

func New(baseURL, signingKey string) *Instrumentor {
	var key []byte
	if signingKey != "" {
		key = []byte(signingKey)
	}
	return &Instrumentor{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SigningKey: key,
		NewID:      util.NewTrackingID,
	}
}

// Instrument allocates a tracking id for the (campaign, recipient) pair and
// returns the body with the open pixel and click redirects embedded.
func (i *Instrumentor) Instrument(body, campaignID, recipientID string) (string, string) {
	newID := i.NewID
	if newID == nil {
		newID = util.NewTrackingID
	}
	trackingID := newID()

	body = i.insertPixel(body, i.OpenURL(trackingID, campaignID, recipientID))
	body = i.rewriteLinks(body, trackingID, campaignID, recipientID)
	return body, trackingID
}

func (i *Instrumentor) OpenURL(trackingID, campaignID, recipientID string) string {
	q := url.Values{}
	q.Set(ParamTrackingID, trackingID)
	q.Set(ParamCampaignID, campaignID)
	q.Set(ParamRecipientID, recipientID)
	if sig := i.Sign(trackingID, campaignID, recipientID); sig != "" {
		q.Set(ParamSignature, sig)
	}
	return i.BaseURL + OpenPath + "?" + q.Encode()
}

func (i *Instrumentor) ClickURL(trackingID, campaignID, recipientID, destination string) string {
	q := url.Values{}
	q.Set(ParamTrackingID, trackingID)
	q.Set(ParamCampaignID, campaignID)
	q.Set(ParamRecipientID, recipientID)
	q.Set(ParamURL, destination)
	if sig := i.Sign(trackingID, campaignID, recipientID, destination); sig != "" {
		q.Set(ParamSignature, sig)
	}
	return i.BaseURL + ClickPath + "?" + q.Encode()
}

// Sign returns a truncated HMAC-SHA256 over parts, or "" when no signing
// key is configured.
func (i *Instrumentor) Sign(parts ...string) string {
	if len(i.SigningKey) == 0 {
		return ""
	}
	h := hmac.New(sha256.New, i.SigningKey)
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Verify checks a signature produced by Sign.
func (i *Instrumentor) Verify(sig string, parts ...string) bool {
	if len(i.SigningKey) == 0 {
		return true
	}
	return hmac.Equal([]byte(i.Sign(parts...)), []byte(sig))
}

func (i *Instrumentor) insertPixel(body, pixelURL string) string {
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none">`, html.EscapeString(pixelURL))

	locs := bodyClose.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		return body + pixel
	}
	at := locs[len(locs)-1][0]
	return body[:at] + pixel + body[at:]
}

// rewriteLinks swaps the href value of every trackable anchor. Quote style,
// other attributes and link text are left exactly as they were; unquoted
// values come back double-quoted.
func (i *Instrumentor) rewriteLinks(body, trackingID, campaignID, recipientID string) string {
	if !strings.Contains(strings.ToLower(body), "href") {
		return body
	}
	locs := anchorHref.FindAllStringSubmatchIndex(body, -1)
	if len(locs) == 0 {
		return body
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		valStart, valEnd := loc[4], loc[5]
		val := body[valStart:valEnd]

		quote, raw := "", val
		if val[0] == '"' || val[0] == '\'' {
			quote, raw = val[:1], val[1:len(val)-1]
		}
		dest := html.UnescapeString(strings.TrimSpace(raw))
		if !i.trackable(dest) {
			continue
		}
		// an unquoted value cannot hold the '=' and '&' of the tracking URL
		if quote == "" {
			quote = `"`
		}
		b.WriteString(body[last:valStart])
		b.WriteString(quote + html.EscapeString(i.ClickURL(trackingID, campaignID, recipientID, dest)) + quote)
		last = valEnd
	}
	b.WriteString(body[last:])
	return b.String()
}

func (i *Instrumentor) trackable(dest string) bool {
	if dest == "" {
		return false
	}
	if i.BaseURL != "" && strings.HasPrefix(dest, i.BaseURL+"/") {
		return false
	}
	u, err := url.Parse(dest)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
