package certificate

// Schema labels, in the order they appear top-to-bottom on the certificate.
const (
	LabelDate        = "date"
	LabelFamilyName  = "family name"
	LabelFirstName   = "first name"
	LabelCandidateID = "candidate id"
	LabelDateOfBirth = "date of birth"
	LabelSex         = "sex (m/f)"
	LabelBand        = "band"
	// LabelIssueDate shares its printed label with LabelDate and is found by
	// scanning from the bottom of the document.
	LabelIssueDate = "date end"
)

// Labels is the full ordered schema.
var Labels = []string{
	LabelDate,
	LabelFamilyName,
	LabelFirstName,
	LabelCandidateID,
	LabelDateOfBirth,
	LabelSex,
	LabelBand,
	LabelIssueDate,
}

// forwardLabels are located by the forward scan.
var forwardLabels = Labels[:len(Labels)-1]

// issueDateMarker is the substring the reverse scan looks for.
const issueDateMarker = "date"

// Fields maps a schema label to the raw OCR text that followed it.
// Labels that were not found are absent.
type Fields map[string]string

// FullName joins family and first name the way the certificate is read aloud.
func (f Fields) FullName() string {
	switch {
	case f[LabelFamilyName] == "":
		return f[LabelFirstName]
	case f[LabelFirstName] == "":
		return f[LabelFamilyName]
	}
	return f[LabelFamilyName] + " " + f[LabelFirstName]
}

// Item is one display row of an extraction result.
type Item struct {
	Title string
	Value string
}

// DisplayItems lists the extracted values in presentation order, skipping
// empty ones. Family and first name are merged into a single row.
func (f Fields) DisplayItems() []Item {
	all := []Item{
		{Title: "Exam date", Value: f[LabelDate]},
		{Title: "Full name", Value: f.FullName()},
		{Title: "Candidate ID", Value: f[LabelCandidateID]},
		{Title: "Date of birth", Value: f[LabelDateOfBirth]},
		{Title: "Sex", Value: f[LabelSex]},
		{Title: "Band score", Value: f[LabelBand]},
		{Title: "Issue date", Value: f[LabelIssueDate]},
	}
	out := all[:0]
	for _, it := range all {
		if it.Value != "" {
			out = append(out, it)
		}
	}
	return out
}
