package tracking

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstrumentor() *Instrumentor {
	n := 0
	ins := New("https://t.example.net/", "secret")
	ins.NewID = func() string {
		n++
		return fmt.Sprintf("trk_%d", n)
	}
	return ins
}

var hrefAttr = regexp.MustCompile(`href="([^"]*)"`)

func hrefs(t *testing.T, body string) []*url.URL {
	t.Helper()
	var out []*url.URL
	for _, m := range hrefAttr.FindAllStringSubmatch(body, -1) {
		u, err := url.Parse(html.UnescapeString(m[1]))
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func TestInstrumentReturnsFreshTrackingIDs(t *testing.T) {
	ins := newTestInstrumentor()
	_, id1 := ins.Instrument("<p>hi</p>", "c1", "r1")
	_, id2 := ins.Instrument("<p>hi</p>", "c1", "r2")
	assert.Equal(t, "trk_1", id1)
	assert.Equal(t, "trk_2", id2)
}

func TestLinkRewritePreservesText(t *testing.T) {
	ins := newTestInstrumentor()
	out, tid := ins.Instrument(`<a href="https://example.com/x">Click here</a>`, "c1", "r1")

	require.True(t, strings.HasPrefix(out, `<a href="https://t.example.net/t/click?`), out)
	assert.Contains(t, out, `">Click here</a>`)

	links := hrefs(t, out)
	require.Len(t, links, 1)
	q := links[0].Query()
	assert.Equal(t, "/t/click", links[0].Path)
	assert.Equal(t, "https://example.com/x", q.Get(ParamURL))
	assert.Equal(t, tid, q.Get(ParamTrackingID))
	assert.Equal(t, "c1", q.Get(ParamCampaignID))
	assert.Equal(t, "r1", q.Get(ParamRecipientID))
	assert.True(t, ins.Verify(q.Get(ParamSignature), tid, "c1", "r1", "https://example.com/x"))
	assert.Contains(t, out, "url=https%3A%2F%2Fexample.com%2Fx")
}

func TestNonHTTPLinksUntouched(t *testing.T) {
	ins := newTestInstrumentor()
	in := `<a href="mailto:help@example.com">Mail</a> <a href='tel:+15550100'>Call</a> <a href="#top">Top</a> <a href="/relative">Rel</a>`
	out, _ := ins.Instrument(in, "c1", "r1")
	assert.True(t, strings.HasPrefix(out, in), out)
}

func TestOnlyHrefValueChanges(t *testing.T) {
	ins := newTestInstrumentor()
	in := `<div><A class="btn" HREF='http://example.com/a?b=1&amp;c=2' target="_blank"><b>Go</b> now</A></div>`
	out, _ := ins.Instrument(in, "c1", "r1")

	assert.True(t, strings.HasPrefix(out, `<div><A class="btn" HREF='https://t.example.net/t/click?`), out)
	assert.Contains(t, out, `' target="_blank"><b>Go</b> now</A></div>`)

	m := regexp.MustCompile(`HREF='([^']*)'`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	u, err := url.Parse(html.UnescapeString(m[1]))
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a?b=1&c=2", u.Query().Get(ParamURL))
}

func TestUnquotedHrefRewritten(t *testing.T) {
	ins := newTestInstrumentor()
	out, tid := ins.Instrument(`<a href=https://example.com/x>Click here</a>`, "c1", "r1")

	require.True(t, strings.HasPrefix(out, `<a href="https://t.example.net/t/click?`), out)
	assert.Contains(t, out, `">Click here</a>`)

	links := hrefs(t, out)
	require.Len(t, links, 1)
	assert.Equal(t, "https://example.com/x", links[0].Query().Get(ParamURL))
	assert.Equal(t, tid, links[0].Query().Get(ParamTrackingID))
}

func TestQuotedAngleBracketBeforeHref(t *testing.T) {
	ins := newTestInstrumentor()
	out, _ := ins.Instrument(`<a title="a>b" href="https://example.com/x">Go</a>`, "c1", "r1")

	require.True(t, strings.HasPrefix(out, `<a title="a>b" href="https://t.example.net/t/click?`), out)
	links := hrefs(t, out)
	require.Len(t, links, 1)
	assert.Equal(t, "https://example.com/x", links[0].Query().Get(ParamURL))
}

func TestMixedAnchorsEachRewrittenOnce(t *testing.T) {
	ins := newTestInstrumentor()
	in := `<a href="mailto:x@example.com">m</a><a class=cta href='https://example.com/a'>a</a><a href=http://example.com/b>b</a>`
	out, _ := ins.Instrument(in, "c1", "r1")

	assert.True(t, strings.HasPrefix(out, `<a href="mailto:x@example.com">m</a><a class=cta href='https://t.example.net/t/click?`), out)
	assert.Equal(t, 2, strings.Count(out, "/t/click?"))
}

func TestAlreadyTrackedLinksSkipped(t *testing.T) {
	ins := newTestInstrumentor()
	in := `<a href="https://t.example.net/t/click?tid=x">x</a>`
	out, _ := ins.Instrument(in, "c1", "r1")
	assert.True(t, strings.HasPrefix(out, in))
}

func TestAttributeNamedLikeHrefIgnored(t *testing.T) {
	ins := newTestInstrumentor()
	in := `<a data-href="https://example.com/x">x</a>`
	out, _ := ins.Instrument(in, "c1", "r1")
	assert.True(t, strings.HasPrefix(out, in))
}

func TestOpenPixelBeforeClosingBody(t *testing.T) {
	ins := newTestInstrumentor()
	out, tid := ins.Instrument("<html><body><p>hi</p></BODY></html>", "c1", "r1")

	idx := strings.Index(out, "<img ")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "<html><body><p>hi</p><img ", out[:idx+5])
	assert.True(t, strings.HasSuffix(out, `style="display:none"></BODY></html>`), out)

	src := regexp.MustCompile(`src="([^"]*)"`).FindStringSubmatch(out)
	require.Len(t, src, 2)
	u, err := url.Parse(html.UnescapeString(src[1]))
	require.NoError(t, err)
	assert.Equal(t, "/t/open", u.Path)
	assert.Equal(t, tid, u.Query().Get(ParamTrackingID))
	assert.Equal(t, "c1", u.Query().Get(ParamCampaignID))
	assert.Equal(t, "r1", u.Query().Get(ParamRecipientID))
}

func TestOpenPixelAppendedWithoutBody(t *testing.T) {
	ins := newTestInstrumentor()
	out, _ := ins.Instrument("<p>hi</p>", "c1", "r1")
	assert.True(t, strings.HasPrefix(out, "<p>hi</p><img "))
	assert.True(t, strings.HasSuffix(out, ">"))
}

func TestUnsignedWithoutKey(t *testing.T) {
	ins := New("https://t.example.net", "")
	u, err := url.Parse(ins.OpenURL("trk_1", "c1", "r1"))
	require.NoError(t, err)
	assert.Empty(t, u.Query().Get(ParamSignature))
	assert.True(t, ins.Verify("", "anything"))
}

func TestVerifyRejectsTamperedDestination(t *testing.T) {
	ins := newTestInstrumentor()
	sig := ins.Sign("trk_1", "c1", "r1", "https://example.com/x")
	assert.False(t, ins.Verify(sig, "trk_1", "c1", "r1", "https://evil.example/"))
}
