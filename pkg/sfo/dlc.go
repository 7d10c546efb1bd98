package sfo

// Capacities of the additional-content parameters.
const (
	CategoryMaxLength  = 4
	ContentIDMaxLength = 48
	FormatMaxLength    = 4
	TitleMaxLength     = 128
	TitleIDMaxLength   = 12
	VersionMaxLength   = 8
)

// Well-known parameter keys.
const (
	KeyAttribute = "ATTRIBUTE"
	KeyCategory  = "CATEGORY"
	KeyContentID = "CONTENT_ID"
	KeyFormat    = "FORMAT"
	KeyTitle     = "TITLE"
	KeyTitleID   = "TITLE_ID"
	KeyVersion   = "VERSION"
)

// CategoryAdditionalContent marks a package as additional content.
const CategoryAdditionalContent = "ac"

// DLCParams holds the values of an additional-content parameter file.
type DLCParams struct {
	Attribute uint32
	ContentID string
	Title     string
	TitleID   string
	Version   string
}

// NewDLCSchema builds the parameter set of an additional-content package.
// Keys are emitted in ascending order.
func NewDLCSchema(p DLCParams) (*Schema, error) {
	version := p.Version
	if version == "" {
		version = "01.00"
	}

	return NewSchema(
		IntegerEntry(KeyAttribute, p.Attribute),
		StringEntry(KeyCategory, CategoryAdditionalContent, CategoryMaxLength),
		StringEntry(KeyContentID, p.ContentID, ContentIDMaxLength),
		StringEntry(KeyFormat, "obs", FormatMaxLength),
		StringEntry(KeyTitle, p.Title, TitleMaxLength),
		StringEntry(KeyTitleID, p.TitleID, TitleIDMaxLength),
		StringEntry(KeyVersion, version, VersionMaxLength),
	)
}
