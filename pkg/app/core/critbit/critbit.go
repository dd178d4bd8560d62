// Package critbit implements a 128-bit-keyed critbit (PATRICIA) tree
// whose inner and leaf nodes share one fixed-size slab cell, per
// spec §4.2 / §4.9. It backs both sides of an orderbook (keyed by
// order id) and a settlement log (keyed by owner).
package critbit

import (
	"fmt"
	"math"

	"github.com/aquadex/core/pkg/aqerr"
	"github.com/aquadex/core/pkg/app/core/slab"
)

// Key128 is a 128-bit tree key: the upper 64 bits sort before the
// lower 64 bits. Orderbook keys pack (coded_price, sequence); owner
// keys fold a 32-byte owner id into Hi/Lo — see the orderbook and
// settlement packages for how each domain builds one.
type Key128 struct {
	Hi uint64
	Lo uint64
}

// Less reports whether k sorts before other in ascending traversal.
func (k Key128) Less(other Key128) bool {
	if k.Hi != other.Hi {
		return k.Hi < other.Hi
	}
	return k.Lo < other.Lo
}

// Equal reports key equality.
func (k Key128) Equal(other Key128) bool { return k.Hi == other.Hi && k.Lo == other.Lo }

// bit returns the bit at pos (0 = MSB of Hi, 127 = LSB of Lo).
func (k Key128) bit(pos int) int {
	if pos < 64 {
		return int((k.Hi >> (63 - pos)) & 1)
	}
	return int((k.Lo >> (63 - (pos - 64))) & 1)
}

// firstDiffBit returns the position of the most significant bit at
// which a and b differ, or -1 if they are equal.
func firstDiffBit(a, b Key128) int {
	x := a.Hi ^ b.Hi
	if x != 0 {
		return msbPos(x)
	}
	x = a.Lo ^ b.Lo
	if x != 0 {
		return 64 + msbPos(x)
	}
	return -1
}

func msbPos(x uint64) int {
	for i := 0; i < 64; i++ {
		if (x>>(63-i))&1 == 1 {
			return i
		}
	}
	return 64
}

const (
	tagEmpty = 0
	tagInner = 1
	tagLeaf  = 2
	tagFree  = 3

	nodeSize   = 56
	overheadSz = 32 // bump_index u64, free_list_len u64, free_list_head u32, root_node u32, leaf_count u64

	noIndex = math.MaxUint32
)

// Leaf is the caller-visible view of a resident key.
type Leaf struct {
	Handle uint32 // node index, stable until Remove
	Key    Key128
	Owner  [32]byte
	Slot   uint32 // payload slot in the companion SlabVec
}

// Tree is a critbit index over one SlabAlloc typed container.
type Tree struct {
	alloc  *slab.Alloc
	typeID int
}

// NewTree registers typeID on alloc as a critbit container and
// initializes an empty tree.
func NewTree(alloc *slab.Alloc, typeID int) (*Tree, error) {
	if err := alloc.RegisterType(typeID, nodeSize, overheadSz); err != nil {
		return nil, err
	}
	t := &Tree{alloc: alloc, typeID: typeID}
	ov, err := alloc.EnsureOverhead(typeID)
	if err != nil {
		return nil, err
	}
	putHeader(ov, 0, 0, noIndex, noIndex, 0)
	return t, nil
}

// OpenTree re-attaches to a type already registered and populated,
// e.g. after the region was restored from storage.
func OpenTree(alloc *slab.Alloc, typeID int) *Tree {
	return &Tree{alloc: alloc, typeID: typeID}
}

func putHeader(ov []byte, bumpIndex, freeListLen uint64, freeListHead, rootNode uint32, leafCount uint64) {
	putU64(ov[0:8], bumpIndex)
	putU64(ov[8:16], freeListLen)
	putU32(ov[16:20], freeListHead)
	putU32(ov[20:24], rootNode)
	putU64(ov[24:32], leafCount)
}

func (t *Tree) header() ([]byte, error) { return t.alloc.Overhead(t.typeID) }

func (t *Tree) rootNode() (uint32, error) {
	ov, err := t.header()
	if err != nil {
		return 0, err
	}
	return u32(ov[20:24]), nil
}

func (t *Tree) setRootNode(idx uint32) error {
	ov, err := t.header()
	if err != nil {
		return err
	}
	putU32(ov[20:24], idx)
	return nil
}

func (t *Tree) leafCount() (uint64, error) {
	ov, err := t.header()
	if err != nil {
		return 0, err
	}
	return u64(ov[24:32]), nil
}

func (t *Tree) addLeafCount(delta int64) error {
	ov, err := t.header()
	if err != nil {
		return err
	}
	cur := u64(ov[24:32])
	putU64(ov[24:32], uint64(int64(cur)+delta))
	return nil
}

// Len returns the number of resident keys (I6).
func (t *Tree) Len() (uint64, error) { return t.leafCount() }

func (t *Tree) allocNode() (uint32, error) {
	ov, err := t.header()
	if err != nil {
		return 0, err
	}
	freeHead := u32(ov[16:20])
	if freeHead != noIndex {
		rec, err := t.alloc.RecordBytesExisting(t.typeID, uint64(freeHead))
		if err != nil {
			return 0, fmt.Errorf("critbit: corrupt free list: %w", aqerr.ErrInvariant)
		}
		next := u32(rec[4:8])
		putU32(ov[16:20], next)
		freeLen := u64(ov[8:16])
		putU64(ov[8:16], freeLen-1)
		return freeHead, nil
	}
	bump := u64(ov[0:8])
	idx := uint32(bump)
	if _, err := t.alloc.RecordBytes(t.typeID, uint64(idx)); err != nil {
		return 0, err
	}
	putU64(ov[0:8], bump+1)
	return idx, nil
}

func (t *Tree) freeNode(idx uint32) error {
	rec, err := t.alloc.RecordBytesExisting(t.typeID, uint64(idx))
	if err != nil {
		return err
	}
	ov, err := t.header()
	if err != nil {
		return err
	}
	freeHead := u32(ov[16:20])
	putU32(rec[0:4], tagFree)
	putU32(rec[4:8], freeHead)
	putU32(ov[16:20], idx)
	putU64(ov[8:16], u64(ov[8:16])+1)
	return nil
}

func (t *Tree) readNode(idx uint32) ([]byte, error) {
	return t.alloc.RecordBytesExisting(t.typeID, uint64(idx))
}

func (t *Tree) writeInner(idx uint32, prefix Key128, prefixLen uint32, child0, child1 uint32) error {
	rec, err := t.alloc.RecordBytesExisting(t.typeID, uint64(idx))
	if err != nil {
		return err
	}
	putU32(rec[0:4], tagInner)
	putU64(rec[4:12], prefix.Hi)
	putU64(rec[12:20], prefix.Lo)
	putU32(rec[20:24], prefixLen)
	putU32(rec[24:28], child0)
	putU32(rec[28:32], child1)
	return nil
}

func (t *Tree) writeLeaf(idx uint32, key Key128, owner [32]byte, slot uint32) error {
	rec, err := t.alloc.RecordBytesExisting(t.typeID, uint64(idx))
	if err != nil {
		return err
	}
	putU32(rec[0:4], tagLeaf)
	putU32(rec[4:8], slot)
	putU64(rec[8:16], key.Hi)
	putU64(rec[16:24], key.Lo)
	copy(rec[24:56], owner[:])
	return nil
}

func readInner(rec []byte) (prefix Key128, prefixLen uint32, child0, child1 uint32) {
	prefix = Key128{Hi: u64(rec[4:12]), Lo: u64(rec[12:20])}
	prefixLen = u32(rec[20:24])
	child0 = u32(rec[24:28])
	child1 = u32(rec[28:32])
	return
}

func readLeaf(idx uint32, rec []byte) Leaf {
	l := Leaf{Handle: idx}
	l.Slot = u32(rec[4:8])
	l.Key = Key128{Hi: u64(rec[8:16]), Lo: u64(rec[16:24])}
	copy(l.Owner[:], rec[24:56])
	return l
}

// Insert adds key → slot with the given owner. Fails ErrDuplicate if
// key is already resident.
func (t *Tree) Insert(key Key128, owner [32]byte, slot uint32) error {
	root, err := t.rootNode()
	if err != nil {
		return err
	}
	if root == noIndex {
		idx, err := t.allocNode()
		if err != nil {
			return err
		}
		if err := t.writeLeaf(idx, key, owner, slot); err != nil {
			return err
		}
		if err := t.setRootNode(idx); err != nil {
			return err
		}
		return t.addLeafCount(1)
	}

	closest, err := t.closestLeaf(key)
	if err != nil {
		return err
	}
	if closest.Key.Equal(key) {
		return fmt.Errorf("critbit: key already present: %w", aqerr.ErrDuplicate)
	}
	critBit := firstDiffBit(closest.Key, key)

	// Walk again, stopping where the new inner node must be spliced in.
	type step struct {
		idx  uint32
		side int
	}
	var path []step
	cur := root
	for {
		rec, err := t.readNode(cur)
		if err != nil {
			return err
		}
		tag := u32(rec[0:4])
		if tag != tagInner {
			break
		}
		_, prefixLen, child0, child1 := readInner(rec)
		if prefixLen >= uint32(critBit) {
			break
		}
		side := key.bit(int(prefixLen))
		path = append(path, step{idx: cur, side: side})
		if side == 0 {
			cur = child0
		} else {
			cur = child1
		}
	}

	newLeaf, err := t.allocNode()
	if err != nil {
		return err
	}
	if err := t.writeLeaf(newLeaf, key, owner, slot); err != nil {
		return err
	}
	newInner, err := t.allocNode()
	if err != nil {
		return err
	}
	dir := key.bit(critBit)
	var child0, child1 uint32
	if dir == 0 {
		child0, child1 = newLeaf, cur
	} else {
		child0, child1 = cur, newLeaf
	}
	if err := t.writeInner(newInner, key, uint32(critBit), child0, child1); err != nil {
		return err
	}

	if len(path) == 0 {
		if err := t.setRootNode(newInner); err != nil {
			return err
		}
	} else {
		p := path[len(path)-1]
		rec, err := t.readNode(p.idx)
		if err != nil {
			return err
		}
		prefix, prefixLen, child0o, child1o := readInner(rec)
		if p.side == 0 {
			child0o = newInner
		} else {
			child1o = newInner
		}
		if err := t.writeInner(p.idx, prefix, prefixLen, child0o, child1o); err != nil {
			return err
		}
	}
	return t.addLeafCount(1)
}

// closestLeaf descends from root using key's own bits at each inner
// node's branch point, landing on the leaf that would be key's
// neighbour if key is absent (or key's own leaf if present).
func (t *Tree) closestLeaf(key Key128) (Leaf, error) {
	root, err := t.rootNode()
	if err != nil {
		return Leaf{}, err
	}
	cur := root
	for {
		rec, err := t.readNode(cur)
		if err != nil {
			return Leaf{}, err
		}
		tag := u32(rec[0:4])
		if tag == tagLeaf {
			return readLeaf(cur, rec), nil
		}
		_, prefixLen, child0, child1 := readInner(rec)
		if key.bit(int(prefixLen)) == 0 {
			cur = child0
		} else {
			cur = child1
		}
	}
}

// Remove deletes key and returns its payload slot. Fails ErrNotFound.
func (t *Tree) Remove(key Key128) (uint32, error) {
	root, err := t.rootNode()
	if err != nil {
		return 0, err
	}
	if root == noIndex {
		return 0, fmt.Errorf("critbit: empty tree: %w", aqerr.ErrNotFound)
	}

	type step struct {
		idx  uint32
		side int
	}
	var path []step
	cur := root
	for {
		rec, err := t.readNode(cur)
		if err != nil {
			return 0, err
		}
		if u32(rec[0:4]) == tagLeaf {
			break
		}
		_, prefixLen, child0, child1 := readInner(rec)
		side := key.bit(int(prefixLen))
		path = append(path, step{idx: cur, side: side})
		if side == 0 {
			cur = child0
		} else {
			cur = child1
		}
	}

	leafRec, err := t.readNode(cur)
	if err != nil {
		return 0, err
	}
	leaf := readLeaf(cur, leafRec)
	if !leaf.Key.Equal(key) {
		return 0, fmt.Errorf("critbit: key not resident: %w", aqerr.ErrNotFound)
	}

	if len(path) == 0 {
		// sole leaf was the root
		if err := t.setRootNode(noIndex); err != nil {
			return 0, err
		}
		if err := t.freeNode(cur); err != nil {
			return 0, err
		}
		if err := t.addLeafCount(-1); err != nil {
			return 0, err
		}
		return leaf.Slot, nil
	}

	parent := path[len(path)-1]
	prec, err := t.readNode(parent.idx)
	if err != nil {
		return 0, err
	}
	_, _, child0, child1 := readInner(prec)
	var sibling uint32
	if parent.side == 0 {
		sibling = child1
	} else {
		sibling = child0
	}

	if len(path) == 1 {
		if err := t.setRootNode(sibling); err != nil {
			return 0, err
		}
	} else {
		gp := path[len(path)-2]
		grec, err := t.readNode(gp.idx)
		if err != nil {
			return 0, err
		}
		gprefix, gprefixLen, gchild0, gchild1 := readInner(grec)
		if gp.side == 0 {
			gchild0 = sibling
		} else {
			gchild1 = sibling
		}
		if err := t.writeInner(gp.idx, gprefix, gprefixLen, gchild0, gchild1); err != nil {
			return 0, err
		}
	}

	if err := t.freeNode(cur); err != nil {
		return 0, err
	}
	if err := t.freeNode(parent.idx); err != nil {
		return 0, err
	}
	if err := t.addLeafCount(-1); err != nil {
		return 0, err
	}
	return leaf.Slot, nil
}

// Min returns the smallest resident key, or ok=false if the tree is empty.
func (t *Tree) Min() (Leaf, bool, error) { return t.extreme(0) }

// Max returns the largest resident key, or ok=false if the tree is empty.
func (t *Tree) Max() (Leaf, bool, error) { return t.extreme(1) }

func (t *Tree) extreme(side int) (Leaf, bool, error) {
	root, err := t.rootNode()
	if err != nil {
		return Leaf{}, false, err
	}
	if root == noIndex {
		return Leaf{}, false, nil
	}
	cur := root
	for {
		rec, err := t.readNode(cur)
		if err != nil {
			return Leaf{}, false, err
		}
		if u32(rec[0:4]) == tagLeaf {
			return readLeaf(cur, rec), true, nil
		}
		_, _, child0, child1 := readInner(rec)
		if side == 0 {
			cur = child0
		} else {
			cur = child1
		}
	}
}

// Get looks up key without removing it.
func (t *Tree) Get(key Key128) (Leaf, bool, error) {
	root, err := t.rootNode()
	if err != nil {
		return Leaf{}, false, err
	}
	if root == noIndex {
		return Leaf{}, false, nil
	}
	l, err := t.closestLeaf(key)
	if err != nil {
		return Leaf{}, false, err
	}
	if !l.Key.Equal(key) {
		return Leaf{}, false, nil
	}
	return l, true, nil
}

// Cursor is a lazy, restartable traversal over a Tree's leaves. It
// holds no closures or continuations: Next() re-enters the tree from
// an explicit stack of pending node indices each call, so a cursor can
// be paused and resumed across unrelated Tree mutations as long as the
// nodes it still has queued remain valid (spec §4.2).
type Cursor struct {
	tree       *Tree
	stack      []uint32
	descending bool
	started    bool
}

// NewAscendingCursor returns a cursor that yields leaves in increasing
// key order.
func NewAscendingCursor(t *Tree) *Cursor { return &Cursor{tree: t} }

// NewDescendingCursor returns a cursor that yields leaves in decreasing
// key order.
func NewDescendingCursor(t *Tree) *Cursor { return &Cursor{tree: t, descending: true} }

// Next returns the next leaf in the cursor's order, or ok=false once
// exhausted.
func (c *Cursor) Next() (Leaf, bool, error) {
	if !c.started {
		c.started = true
		root, err := c.tree.rootNode()
		if err != nil {
			return Leaf{}, false, err
		}
		if root != noIndex {
			c.stack = append(c.stack, root)
		}
	}

	for len(c.stack) > 0 {
		idx := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]

		rec, err := c.tree.readNode(idx)
		if err != nil {
			return Leaf{}, false, err
		}
		if u32(rec[0:4]) == tagLeaf {
			return readLeaf(idx, rec), true, nil
		}
		_, _, child0, child1 := readInner(rec)
		// Push the far child first so the near child pops first.
		if c.descending {
			c.stack = append(c.stack, child0, child1)
		} else {
			c.stack = append(c.stack, child1, child0)
		}
	}
	return Leaf{}, false, nil
}

func u32(b []byte) uint32       { return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24 }
func putU32(b []byte, v uint32) { b[0] = byte(v); b[1] = byte(v >> 8); b[2] = byte(v >> 16); b[3] = byte(v >> 24) }
func u64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
