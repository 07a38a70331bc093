// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-s3crawl.
//
// go-s3crawl is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package crawlable

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jeremyhahn/go-s3crawl/pkg/adapters"
	"github.com/jeremyhahn/go-s3crawl/pkg/common"
	"github.com/jeremyhahn/go-s3crawl/pkg/listing"
	"github.com/jeremyhahn/go-s3crawl/pkg/materialize"
	"github.com/jeremyhahn/go-s3crawl/pkg/objmeta"
	"github.com/jeremyhahn/go-s3crawl/pkg/s3path"
)

// Kind is what a Node is known to be.
type Kind int

const (
	// KindUnknown nodes were named by a caller and not yet seen in a listing.
	KindUnknown Kind = iota
	KindFile
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

func kindOf(k objmeta.Kind) Kind {
	if k == objmeta.KindDir {
		return KindDirectory
	}
	return KindFile
}

// SourceOptions configures an S3Source.
type SourceOptions struct {
	// ConfigObject is returned by every node's ConfigObject.
	ConfigObject any
	Logger       adapters.Logger
}

// S3Source builds object-store nodes backed by a listing cache and a
// materialization cache.
type S3Source struct {
	store    common.ObjectStore
	listings *listing.Cache
	objects  *materialize.Cache
	config   any
	logger   adapters.Logger
}

// NewS3Source composes store and the two caches into a node factory.
func NewS3Source(store common.ObjectStore, listings *listing.Cache, objects *materialize.Cache, opts SourceOptions) (*S3Source, error) {
	if store == nil {
		return nil, common.ErrStoreRequired
	}
	if listings == nil || objects == nil {
		return nil, fmt.Errorf("%w: listing and object caches are required", common.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = adapters.NewNoOpLogger()
	}
	return &S3Source{
		store:    store,
		listings: listings,
		objects:  objects,
		config:   opts.ConfigObject,
		logger:   opts.Logger,
	}, nil
}

// Listings returns the listing cache.
func (s *S3Source) Listings() *listing.Cache {
	return s.listings
}

// Objects returns the materialization cache.
func (s *S3Source) Objects() *materialize.Cache {
	return s.objects
}

// Root returns a directory node for uri. Its size and modification time are
// unknown.
func (s *S3Source) Root(uri string) (*Node, error) {
	key, err := s3path.ParseKey(uri)
	if err != nil {
		return nil, err
	}
	key.Key = s3path.TrimTrailingDelimiter(key.Key)
	return s.node(key, KindDirectory, objmeta.UnknownSize, time.Time{}), nil
}

// Lookup returns the node for uri, resolving its kind through the parent
// listing. A trailing delimiter marks a directory without a lookup.
func (s *S3Source) Lookup(ctx context.Context, uri string) (*Node, error) {
	key, err := s3path.ParseKey(uri)
	if err != nil {
		return nil, err
	}
	if key.IsRoot() || strings.HasSuffix(key.Key, s3path.Delimiter) {
		return s.Root(uri)
	}
	return s.node(key, KindUnknown, objmeta.UnknownSize, time.Time{}).Resolve(ctx)
}

func (s *S3Source) node(key s3path.ObjectKey, kind Kind, size int64, modified time.Time) *Node {
	return &Node{src: s, key: key, kind: kind, size: size, modified: modified}
}

// Node is an object-store dataset. Nodes are immutable values; parents and
// children are derived from the caches on every call.
type Node struct {
	src      *S3Source
	key      s3path.ObjectKey
	kind     Kind
	size     int64
	modified time.Time
}

var _ Dataset = (*Node)(nil)

// Key returns the node's identity.
func (n *Node) Key() s3path.ObjectKey {
	return n.key
}

// Kind returns what the node is known to be.
func (n *Node) Kind() Kind {
	return n.kind
}

// ConfigObject returns the source's configuration object.
func (n *Node) ConfigObject() any {
	return n.src.config
}

// Path returns the node's URI. Directories have no trailing delimiter except
// the bucket root.
func (n *Node) Path() string {
	return n.key.URI()
}

// Name returns the last key element, or the bucket for the bucket root.
func (n *Node) Name() string {
	return n.key.Name()
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.kind, n.Path())
}

// IsDirectory reports whether the node is known to be a directory.
func (n *Node) IsDirectory() bool {
	return n.kind == KindDirectory
}

// IsCollection is IsDirectory.
func (n *Node) IsCollection() bool {
	return n.IsDirectory()
}

// Size is the size carried by the listing entry that produced the node.
func (n *Node) Size() int64 {
	return n.size
}

// Length is Size.
func (n *Node) Length() int64 {
	return n.size
}

// LastModified is the modification time carried by the listing entry that
// produced the node.
func (n *Node) LastModified() (time.Time, bool) {
	return n.modified, !n.modified.IsZero()
}

// Stat describes the node as an fs.FileInfo.
func (n *Node) Stat() os.FileInfo {
	return NewFileInfo(n.Name(), n.size, n.modified, n.IsDirectory())
}

// ParentNode returns the enclosing directory. The bucket root is its own
// parent.
func (n *Node) ParentNode() *Node {
	if n.key.IsRoot() {
		return n.src.node(n.key, KindDirectory, objmeta.UnknownSize, time.Time{})
	}
	parent := n.key.Parent()
	parent.Key = s3path.TrimTrailingDelimiter(parent.Key)
	return n.src.node(parent, KindDirectory, objmeta.UnknownSize, time.Time{})
}

// Parent implements Dataset.
func (n *Node) Parent() (Dataset, error) {
	return n.ParentNode(), nil
}

// Exists reports whether the bucket exists and, below the bucket root,
// whether the parent listing holds the node.
func (n *Node) Exists(ctx context.Context) (bool, error) {
	ok, err := n.src.store.BucketExists(ctx, n.key.Bucket)
	if err != nil || !ok || n.key.IsRoot() {
		return ok, err
	}
	_, found, err := n.entry(ctx)
	return found, err
}

// entry finds the node in its parent listing.
func (n *Node) entry(ctx context.Context) (objmeta.Entry, bool, error) {
	l, err := n.src.listings.Get(ctx, n.ParentNode().Path())
	if err != nil {
		return objmeta.Entry{}, false, err
	}
	e, ok := l.Find(n.Name())
	return e, ok, nil
}

// Resolve returns the node with its kind, size and modification time taken
// from the parent listing. Known nodes are returned unchanged.
func (n *Node) Resolve(ctx context.Context) (*Node, error) {
	if n.kind != KindUnknown {
		return n, nil
	}
	if n.key.IsRoot() {
		return n.src.node(n.key, KindDirectory, objmeta.UnknownSize, time.Time{}), nil
	}
	e, ok, err := n.entry(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, n.Path())
	}
	return n.src.node(n.key, kindOf(e.Kind), e.Size, e.LastModified), nil
}

// DescendantNode returns the node at relativePath below n. A trailing
// delimiter marks a directory; otherwise the kind stays unknown until
// resolved.
func (n *Node) DescendantNode(relativePath string) (*Node, error) {
	if n.kind == KindFile {
		return nil, fmt.Errorf("%w: %s", common.ErrNotADirectory, n.Path())
	}
	if relativePath == "" {
		return n, nil
	}
	child, err := n.key.Child(relativePath)
	if err != nil {
		return nil, err
	}
	kind := KindUnknown
	if strings.HasSuffix(relativePath, s3path.Delimiter) {
		kind = KindDirectory
	}
	return n.src.node(child, kind, objmeta.UnknownSize, time.Time{}), nil
}

// Descendant implements Dataset.
func (n *Node) Descendant(relativePath string) (Dataset, error) {
	return n.DescendantNode(relativePath)
}

// Children lists the directory through the listing cache.
func (n *Node) Children(ctx context.Context) ([]*Node, error) {
	resolved, err := n.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if !resolved.IsDirectory() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotADirectory, n.Path())
	}

	l, err := n.src.listings.Get(ctx, n.key.URI())
	if err != nil {
		return nil, err
	}
	entries := l.Contents()
	children := make([]*Node, 0, len(entries))
	for _, e := range entries {
		key, err := n.key.Child(e.Name)
		if err != nil {
			return nil, err
		}
		children = append(children, n.src.node(key, kindOf(e.Kind), e.Size, e.LastModified))
	}
	return children, nil
}

// ListDatasets implements Dataset. The filter is applied after listing.
func (n *Node) ListDatasets(ctx context.Context, filter Filter) ([]Dataset, error) {
	children, err := n.Children(ctx)
	if err != nil {
		return nil, err
	}
	return apply(children, filter), nil
}

// LocalFile returns the path of the node's local copy, downloading it if
// needed. The file belongs to the materialization cache and nothing pins it:
// a later TTL, TTI or capacity removal deletes it even while the caller is
// still reading the path. Use Open to hold a descriptor that outlives the
// removal.
func (n *Node) LocalFile(ctx context.Context) (string, error) {
	if err := n.requireFile(ctx); err != nil {
		return "", err
	}
	obj, err := n.src.objects.Get(ctx, n.Path())
	if err != nil {
		return "", err
	}
	return obj.LocalPath, nil
}

// Open opens the node's local copy for reading.
func (n *Node) Open(ctx context.Context) (*os.File, error) {
	if err := n.requireFile(ctx); err != nil {
		return nil, err
	}
	return n.src.objects.Open(ctx, n.Path())
}

func (n *Node) requireFile(ctx context.Context) error {
	resolved, err := n.Resolve(ctx)
	if err != nil {
		return err
	}
	if resolved.IsDirectory() {
		return fmt.Errorf("%w: %s", common.ErrNotAFile, n.Path())
	}
	return nil
}
