package session

import "fmt"

// UIState is the single visible phase of a session.
type UIState int

const (
	StateUpload UIState = iota
	StatePreview
	StateLoading
	StateResults
	StateError
)

func (s UIState) String() string {
	switch s {
	case StateUpload:
		return "upload"
	case StatePreview:
		return "preview"
	case StateLoading:
		return "loading"
	case StateResults:
		return "results"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("UIState(%d)", int(s))
	}
}

func (s UIState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Section is a named region of the report page.
type Section string

const (
	SectionUpload  Section = "uploadSection"
	SectionPreview Section = "previewSection"
	SectionLoading Section = "loadingSection"
	SectionResults Section = "resultsSection"
	SectionError   Section = "errorSection"
)

// Sections lists every region in page order.
var Sections = []Section{SectionUpload, SectionPreview, SectionLoading, SectionResults, SectionError}

// Visibility maps each section to whether it is shown.
type Visibility map[Section]bool

// Render is the single dispatcher from state to page layout: exactly one
// section is visible for any state.
func Render(s UIState) Visibility {
	visible := SectionUpload
	switch s {
	case StatePreview:
		visible = SectionPreview
	case StateLoading:
		visible = SectionLoading
	case StateResults:
		visible = SectionResults
	case StateError:
		visible = SectionError
	}

	v := make(Visibility, len(Sections))
	for _, sec := range Sections {
		v[sec] = sec == visible
	}
	return v
}

// Visible returns the one shown section.
func (v Visibility) Visible() Section {
	for _, sec := range Sections {
		if v[sec] {
			return sec
		}
	}
	return SectionUpload
}
