package ipfs

import (
	"context"
	"io"
	"sync"

	"github.com/ipfs/go-cid"
	files "github.com/ipfs/go-ipfs-files"
	httpapi "github.com/ipfs/go-ipfs-http-client"
	logging "github.com/ipfs/go-log/v2"
	iface "github.com/ipfs/interface-go-ipfs-core"
	"github.com/ipfs/interface-go-ipfs-core/options"
	ipath "github.com/ipfs/interface-go-ipfs-core/path"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/xerrors"

	"github.com/stowage-dev/stowage/deals"
)

var log = logging.Logger("ipfs")

var _ deals.ContentSource = (*Client)(nil)

// Client wraps the IPFS HTTP API for payload transfer. Content identity is
// whatever the node reports; proof commitments are checked elsewhere against
// the deal checksum, never against the CID.
type Client struct {
	api iface.CoreAPI
}

// New connects to an IPFS node at the given API multiaddr, e.g.
// /ip4/127.0.0.1/tcp/5001.
func New(apiAddr string) (*Client, error) {
	ma, err := multiaddr.NewMultiaddr(apiAddr)
	if err != nil {
		return nil, xerrors.Errorf("parsing ipfs api address %q: %w", apiAddr, err)
	}
	api, err := httpapi.NewApi(ma)
	if err != nil {
		return nil, xerrors.Errorf("connecting to ipfs node: %w", err)
	}
	return &Client{api: api}, nil
}

// Add imports and pins content, returning the node-assigned CID.
func (c *Client) Add(ctx context.Context, r io.Reader) (cid.Cid, error) {
	p, err := c.api.Unixfs().Add(ctx, files.NewReaderFile(r), options.Unixfs.Pin(true))
	if err != nil {
		return cid.Undef, xerrors.Errorf("adding content: %w", err)
	}
	log.Debugw("content added", "cid", p.Cid())
	return p.Cid(), nil
}

// Cat streams the full content of a CID.
func (c *Client) Cat(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	node, err := c.api.Unixfs().Get(ctx, ipath.IpfsPath(id))
	if err != nil {
		return nil, xerrors.Errorf("fetching %s: %w", id, err)
	}
	f := files.ToFile(node)
	if f == nil {
		node.Close() //nolint:errcheck
		return nil, xerrors.Errorf("%s is not a file", id)
	}
	return f, nil
}

// Open fetches content as a random-access reader, as the proof prover needs.
// The reader serializes concurrent ReadAt calls over the underlying stream.
func (c *Client) Open(ctx context.Context, id cid.Cid) (deals.ReadAtCloser, error) {
	f, err := c.Cat(ctx, id)
	if err != nil {
		return nil, err
	}
	sf, ok := f.(io.Seeker)
	if !ok {
		f.Close() //nolint:errcheck
		return nil, xerrors.Errorf("%s does not support seeking", id)
	}
	return &fileReaderAt{f: f, s: sf}, nil
}

// Pin pins a CID recursively.
func (c *Client) Pin(ctx context.Context, id cid.Cid) error {
	if err := c.api.Pin().Add(ctx, ipath.IpfsPath(id)); err != nil {
		return xerrors.Errorf("pinning %s: %w", id, err)
	}
	return nil
}

// Unpin removes a pin. Content becomes collectable, not deleted.
func (c *Client) Unpin(ctx context.Context, id cid.Cid) error {
	if err := c.api.Pin().Rm(ctx, ipath.IpfsPath(id)); err != nil {
		return xerrors.Errorf("unpinning %s: %w", id, err)
	}
	return nil
}

// IsPinned reports whether the node holds a pin for the CID.
func (c *Client) IsPinned(ctx context.Context, id cid.Cid) (bool, error) {
	_, pinned, err := c.api.Pin().IsPinned(ctx, ipath.IpfsPath(id))
	if err != nil {
		return false, xerrors.Errorf("checking pin for %s: %w", id, err)
	}
	return pinned, nil
}

// fileReaderAt adapts a seekable stream to io.ReaderAt under a mutex.
type fileReaderAt struct {
	mu sync.Mutex
	f  io.ReadCloser
	s  io.Seeker
}

func (r *fileReaderAt) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.s.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(r.f, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

func (r *fileReaderAt) Close() error {
	return r.f.Close()
}
