package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/chain/types"
)

var log = logging.Logger("pinning")

// Config parameterizes the pinning service client.
type Config struct {
	// Hostname of the service, e.g. https://api.estuary.tech.
	Hostname string
	// Key is the bearer token.
	Key string
	// Timeout bounds each request end to end.
	Timeout time.Duration
}

// Client replicates deal payloads to a remote Estuary-compatible pinning
// service, so content survives the local node. Staging is advisory; proofs
// are always served from content the tracker can reach itself.
type Client struct {
	base string
	key  string
	http *http.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		base: strings.TrimSuffix(cfg.Hostname, "/"),
		key:  cfg.Key,
		http: &http.Client{Timeout: timeout},
	}
}

// cidEnvelope is the dag-json CID form the service speaks: {"/" : "bafy..."}.
type cidEnvelope struct {
	Root string `json:"/"`
}

func (e cidEnvelope) decode() (cid.Cid, error) {
	return cid.Decode(e.Root)
}

// StagedContent is the service's record of an accepted upload.
type StagedContent struct {
	CID       cid.Cid
	ContentID uint64
	Providers []string
}

// ContentStat is one entry of the service's content listing.
type ContentStat struct {
	CID  cid.Cid
	Name string
	Size uint64
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.key)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close() //nolint:errcheck
		return nil, xerrors.Errorf("pinning service returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// StageContent uploads payload bytes tagged with their deal id and checksum,
// so the service can associate the replica with the deal.
func (c *Client) StageContent(ctx context.Context, r io.Reader, name string, dealID types.DealID, cs types.Checksum) (*StagedContent, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("data", name)
	if err != nil {
		return nil, xerrors.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, xerrors.Errorf("buffering payload: %w", err)
	}
	if err := mw.WriteField("dealId", dealID.String()); err != nil {
		return nil, xerrors.Errorf("building upload form: %w", err)
	}
	if err := mw.WriteField("b3Hash", cs.Hex()); err != nil {
		return nil, xerrors.Errorf("building upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, xerrors.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/content/add", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, xerrors.Errorf("staging content for deal %s: %w", dealID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var out struct {
		CID       cidEnvelope `json:"cid"`
		EstuaryID uint64      `json:"estuaryId"`
		Providers []string    `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, xerrors.Errorf("decoding staging response: %w", err)
	}
	id, err := out.CID.decode()
	if err != nil {
		return nil, xerrors.Errorf("decoding staged cid: %w", err)
	}

	log.Infow("content staged", "deal", dealID, "cid", id, "contentId", out.EstuaryID)
	return &StagedContent{CID: id, ContentID: out.EstuaryID, Providers: out.Providers}, nil
}

// Contents lists everything staged under the configured key.
func (c *Client) Contents(ctx context.Context) ([]ContentStat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/content/stats", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, xerrors.Errorf("listing staged content: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var raw []struct {
		CID  cidEnvelope `json:"cid"`
		Name string      `json:"name"`
		Size uint64      `json:"size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, xerrors.Errorf("decoding content listing: %w", err)
	}

	out := make([]ContentStat, 0, len(raw))
	for i, e := range raw {
		id, err := e.CID.decode()
		if err != nil {
			return nil, xerrors.Errorf("decoding cid of entry %d: %w", i, err)
		}
		out = append(out, ContentStat{CID: id, Name: e.Name, Size: e.Size})
	}
	return out, nil
}

// PinStatus reports the service-side pin state for a staged content id.
func (c *Client) PinStatus(ctx context.Context, contentID uint64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/pinning/pins/%d", c.base, contentID), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", xerrors.Errorf("reading pin status: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", xerrors.Errorf("decoding pin status: %w", err)
	}
	return out.Status, nil
}
