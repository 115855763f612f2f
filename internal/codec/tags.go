package codec

// tag prefixes every value in the binary property stream. The enumeration
// is closed for a format version: new tags need a new version.
type tag uint32

const (
	tagNil                tag = 1
	tagBool               tag = 2
	tagInt                tag = 3
	tagFloat              tag = 4
	tagString             tag = 5
	tagVector2            tag = 10
	tagRect2              tag = 11
	tagVector3            tag = 12
	tagPlane              tag = 13
	tagQuaternion         tag = 14
	tagAABB               tag = 15
	tagBasis              tag = 16
	tagTransform3D        tag = 17
	tagTransform2D        tag = 18
	tagColor              tag = 20
	tagNodePath           tag = 22
	tagObject             tag = 24
	tagDictionary         tag = 26
	tagArray              tag = 30
	tagPackedByteArray    tag = 31
	tagPackedInt32Array   tag = 32
	tagPackedFloat32Array tag = 33
	tagPackedStringArray  tag = 34
	tagPackedVector3Array tag = 35
	tagPackedColorArray   tag = 36
	tagPackedVector2Array tag = 37
	tagInt64              tag = 40
	tagDouble             tag = 41
	tagVector2i           tag = 45
	tagRect2i             tag = 46
	tagVector3i           tag = 47
	tagPackedInt64Array   tag = 48
	tagPackedFloat64Array tag = 49
	tagVector4            tag = 50
	tagVector4i           tag = 51
	tagProjection         tag = 52
	tagPackedVector4Array tag = 53
)

// object reference sub-kinds following tagObject
const (
	objectEmpty    uint32 = 0
	objectInternal uint32 = 1
	objectExternal uint32 = 2
)

const (
	// stringIndexBit marks a string header as a string-table index rather
	// than an inline length.
	stringIndexBit = 1 << 31

	// nodePathAbsoluteBit is set on a node path's name count.
	nodePathAbsoluteBit = 1 << 31

	reservedFields = 10

	// maxNesting bounds array and dictionary recursion on load.
	maxNesting = 512
)

var magic = [4]byte{'V', 'S', 'C', 'B'}
