package fsck

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code enumerates every PR_* fault the error sink in §6 names, plus
// PR_INODE_MISMATCH_MODE, supplemented from original_source's
// __check_inode_mode (present in the original's enum, dropped from the
// distilled spec's §6 list — see SPEC_FULL.md §5).
type Code int

const (
	PrInvalidNid Code = iota
	PrInoIsZero
	PrBlkaddrIsNewAddr
	PrNodeInvalidBlkaddr
	PrInodeFooterInoNotEqualNid
	PrNodeInoNotEqualFooterIno
	PrNonInodeFooterInoEqualNid
	PrNodeNidNotEqualFooterNid
	PrInvalidXattrOffset
	PrDuplicateNodeBlkaddrInMainBitmap
	PrDuplicateOrphanOrXattrNid
	PrInvalidSumNodeBlock
	PrNatBlkaddrOutSitBitmap
	PrInvalidSumDataBlock
	PrDuplicateDataBlkaddrInMainBitmap
	PrInvalidHashCode
	PrInvalidFtype
	PrNameLenIsZero
	PrInlineDataAddr0NotZero
	PrInlineDataInexistence
	PrInvalidInlineDentry
	PrInvalidExtentValue
	PrInvalidIBlocks
	PrInvalidILinks
	PrLostDotOrDotdot
	PrHardLinkNumIsError
	PrOrphanInodeHasILinks
	PrOrphanInodeError
	PrSitTypeIsError
	PrSitSegmentCountMismatchWithTotal
	PrNatNodeCountMismatchWithSit
	PrSitFreesegCountMismatchWithCp
	PrNatNodeCountMismatchWithCp
	PrNatInodeCountMismatchWithCp
	PrNatInoOutNatBitmap
	PrCurNextBlkIsNotFree
	PrLfsHasNoFreeSection
	PrNidIsUnreachable
	PrNidHasMoreUnreachableLinks

	// PrInodeMismatchMode is the supplemented code C3(j) records, see
	// SPEC_FULL.md §5.
	PrInodeMismatchMode
)

var codeNames = map[Code]string{
	PrInvalidNid:                        "PR_INVALID_NID",
	PrInoIsZero:                         "PR_INO_IS_ZERO",
	PrBlkaddrIsNewAddr:                  "PR_BLKADDR_IS_NEW_ADDR",
	PrNodeInvalidBlkaddr:                "PR_NODE_INVALID_BLKADDR",
	PrInodeFooterInoNotEqualNid:         "PR_INODE_FOOTER_INO_NOT_EQUAL_NID",
	PrNodeInoNotEqualFooterIno:          "PR_NODE_INO_NOT_EQUAL_FOOTER_INO",
	PrNonInodeFooterInoEqualNid:         "PR_NON_INODE_FOOTER_INO_EQUAL_NID",
	PrNodeNidNotEqualFooterNid:          "PR_NODE_NID_NOT_EQUAL_FOOTER_NID",
	PrInvalidXattrOffset:                "PR_INVALID_XATTR_OFFSET",
	PrDuplicateNodeBlkaddrInMainBitmap:  "PR_DUPLICATE_NODE_BLKADDR_IN_MAIN_BITMAP",
	PrDuplicateOrphanOrXattrNid:         "PR_DUPLICATE_ORPHAN_OR_XATTR_NID",
	PrInvalidSumNodeBlock:               "PR_INVALID_SUM_NODE_BLOCK",
	PrNatBlkaddrOutSitBitmap:            "PR_NAT_BLKADDR_OUT_SIT_BITMAP",
	PrInvalidSumDataBlock:               "PR_INVALID_SUM_DATA_BLOCK",
	PrDuplicateDataBlkaddrInMainBitmap:  "PR_DUPLICATE_DATA_BLKADDR_IN_MAIN_BITMAP",
	PrInvalidHashCode:                   "PR_INVALID_HASH_CODE",
	PrInvalidFtype:                      "PR_INVALID_FTYPE",
	PrNameLenIsZero:                     "PR_NAME_LEN_IS_ZERO",
	PrInlineDataAddr0NotZero:            "PR_INLINE_DATA_ADDR0_NOT_ZERO",
	PrInlineDataInexistence:             "PR_INLINE_DATA_INEXISTENCE",
	PrInvalidInlineDentry:               "PR_INVALID_INLINE_DENTRY",
	PrInvalidExtentValue:                "PR_INVALID_EXTENT_VALUE",
	PrInvalidIBlocks:                    "PR_INVALID_I_BLOCKS",
	PrInvalidILinks:                     "PR_INVALID_I_LINKS",
	PrLostDotOrDotdot:                   "PR_LOST_DOT_OR_DOTDOT",
	PrHardLinkNumIsError:                "PR_HARD_LINK_NUM_IS_ERROR",
	PrOrphanInodeHasILinks:              "PR_ORPHAN_INODE_HAS_I_LINKS",
	PrOrphanInodeError:                  "PR_ORPAHN_INODE_ERROR",
	PrSitTypeIsError:                    "PR_SIT_TYPE_IS_ERROR",
	PrSitSegmentCountMismatchWithTotal:  "PR_SIT_SEGMENT_COUNT_MISMATCH_WITH_TOTAL",
	PrNatNodeCountMismatchWithSit:       "PR_NAT_NODE_COUNT_MISMATCH_WITH_SIT",
	PrSitFreesegCountMismatchWithCp:     "PR_SIT_FREESEG_COUNT_MISMATCH_WITH_CP",
	PrNatNodeCountMismatchWithCp:        "PR_NAT_NODE_COUNT_MISMATCH_WITH_CP",
	PrNatInodeCountMismatchWithCp:       "PR_NAT_INODE_COUNT_MISMATCH_WITH_CP",
	PrNatInoOutNatBitmap:                "PR_NAT_INO_OUT_NAT_BITMAP",
	PrCurNextBlkIsNotFree:               "PR_CUR_NEXT_BLK_IS_NOT_FREE",
	PrLfsHasNoFreeSection:               "PR_LFS_HAS_NO_FREE_SECTION",
	PrNidIsUnreachable:                  "PR_NID_IS_UNREACHABLE",
	PrNidHasMoreUnreachableLinks:        "PR_NID_HAS_MORE_UNREACHABLE_LINKS",
	PrInodeMismatchMode:                 "PR_INODE_MISMATCH_MODE",
}

// String renders a Code's original ASSERT-macro name, for report lines.
func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("PR_UNKNOWN(%d)", int(c))
}

// Fault is an error value carrying a Code plus enough context (nid,
// blkaddr, segno) to print an ASSERT_MSG-style diagnostic line.
type Fault struct {
	Code    Code
	Nid     uint32
	Blkaddr int64
	Segno   int64
	Context string
	cause   error
}

func (f *Fault) Error() string {
	msg := f.Code.String()
	if f.Context != "" {
		msg = fmt.Sprintf("%s: %s", msg, f.Context)
	}
	if f.Nid != 0 {
		msg = fmt.Sprintf("%s (nid=%d)", msg, f.Nid)
	}
	if f.Blkaddr != 0 {
		msg = fmt.Sprintf("%s (blkaddr=%d)", msg, f.Blkaddr)
	}
	return msg
}

// Unwrap returns the sentinel a Fault wraps, if any. Fault has no Cause
// method, so errors.Cause on a wrapped fault stops at the *Fault itself,
// which is what tests checking for a specific code need.
func (f *Fault) Unwrap() error {
	return f.cause
}

// NewFault builds a Fault, wrapping it with errors.WithStack so it carries
// a stack trace the way pkg/errors-wrapped faults do throughout this
// checker.
func NewFault(code Code, context string) error {
	return errors.WithStack(&Fault{Code: code, Context: context})
}

// NewFaultNid is NewFault with a nid attached.
func NewFaultNid(code Code, nid uint32, context string) error {
	return errors.WithStack(&Fault{Code: code, Nid: nid, Context: context})
}

// NewFaultBlk is NewFault with a block address attached.
func NewFaultBlk(code Code, blkaddr int64, context string) error {
	return errors.WithStack(&Fault{Code: code, Blkaddr: blkaddr, Context: context})
}

// AsFault extracts the *Fault a wrapped error carries, if any.
func AsFault(err error) (*Fault, bool) {
	type causer interface{ Cause() error }
	for err != nil {
		if f, ok := err.(*Fault); ok {
			return f, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}

// Collector accumulates faults during a run instead of returning on first
// error — the error sink DMD_ADD_ERROR names, owned by the Context rather
// than threaded as a global.
type Collector struct {
	faults []error
}

// Add records a fault. A nil error is a no-op, so call sites can pass
// through a checker's return value unconditionally.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.faults = append(c.faults, err)
}

// Faults returns every recorded fault, in recording order.
func (c *Collector) Faults() []error {
	return c.faults
}

// Empty reports whether no faults were recorded.
func (c *Collector) Empty() bool {
	return len(c.faults) == 0
}
