package certificate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Family Name ":  "familyname",
		"Sex (M/F)":       "sexmf",
		"12/01/2020":      "",
		"Candidate\tID\n": "candidateid",
		"Café":            "caf",
		"":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestNormalizeIdempotentAndAlphabet(t *testing.T) {
	inputs := []string{"Date of Birth", " BAND SCORE 7.5 ", "ÅNGSTRÖM", "x-y_z!", "K", "İstanbul", "ß"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "idempotence for %q", in)
		for _, r := range once {
			assert.True(t, r >= 'a' && r <= 'z', "rune %q in Normalize(%q)", r, in)
		}
	}
}

func TestMatches(t *testing.T) {
	opt := DefaultMatchOptions()
	assert.True(t, Matches("bandcore", "bandcore", opt))
	assert.True(t, Matches("band", "bandscore", opt), "substring")
	assert.True(t, Matches("band", "bend", opt), "3/4 positions")
	assert.False(t, Matches("band", "zzzz", opt))
	assert.False(t, Matches("band", "bendy", opt), "near miss of different length")
	assert.False(t, Matches("familyname", "name", opt), "token inside label is not enough")
}

func TestMatchesLengthGapShortCircuit(t *testing.T) {
	opt := DefaultMatchOptions()
	// contains the label but is 10 characters longer
	assert.False(t, Matches("date", "dateofissuexxx", opt))
	assert.True(t, Matches("date", "dateofissuexx", opt))
	assert.False(t, Matches("candidateidxxxxx", "c", opt))
}

func TestSimilarityRatio(t *testing.T) {
	assert.InDelta(t, 0.75, SimilarityRatio("band", "bend"), 1e-9)
	assert.Zero(t, SimilarityRatio("band", "bands"))
	assert.Zero(t, SimilarityRatio("", ""))
	assert.InDelta(t, 1.0, SimilarityRatio("sexmf", "sexmf"), 1e-9)
}

func TestExtractCertificate(t *testing.T) {
	tokens := []string{"Date", "12/01/2020", "Family Name", "SMITH", "First Name", "JOHN", "Candidate ID", "AB123", "Date", "15/01/2020"}
	got, err := Extract(tokens, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Fields{
		LabelDate:        "12/01/2020",
		LabelFamilyName:  "SMITH",
		LabelFirstName:   "JOHN",
		LabelCandidateID: "AB123",
		LabelIssueDate:   "15/01/2020",
	}, got)
}

func TestExtractFullDocumentWithNoise(t *testing.T) {
	tokens := []string{
		"IELTS", "Test Report Form",
		"Date:", "12/JAN/2024",
		"Famiiy Name", "NGUYEN",
		"First Name", "AN",
		"Candidate ID", "VN123456",
		"Date of Birth", "01/02/2003",
		"Sex (M/F)", "F",
		"Band Score", "7.5",
		"Date", "26/JAN/2024",
	}
	got, err := Extract(tokens, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "12/JAN/2024", got[LabelDate])
	assert.Equal(t, "NGUYEN", got[LabelFamilyName], "single-letter misread")
	assert.Equal(t, "AN", got[LabelFirstName])
	assert.Equal(t, "VN123456", got[LabelCandidateID])
	assert.Equal(t, "01/02/2003", got[LabelDateOfBirth])
	assert.Equal(t, "F", got[LabelSex])
	assert.Equal(t, "7.5", got[LabelBand])
	assert.Equal(t, "26/JAN/2024", got[LabelIssueDate])
}

func TestExtractMissingLabelsAreAbsent(t *testing.T) {
	got, err := Extract([]string{"nothing", "useful", "here"}, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Extract(nil, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractLabelAtEnd(t *testing.T) {
	_, err := Extract([]string{"Family Name", "SMITH", "First Name"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	// Too long for the forward scan; only the reverse scan hits it.
	_, err = Extract([]string{"x", "y", "Issue Date of Document"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestExtractRestartVersusContinue(t *testing.T) {
	// The family name value is printed above its label here.
	tokens := []string{"First Name", "JOHN", "Family Name", "SMITH", "Band", "8.0"}

	restart, err := Extract(tokens, Options{Match: DefaultMatchOptions(), Strategy: RestartEachLabel})
	require.NoError(t, err)
	assert.Equal(t, "SMITH", restart[LabelFamilyName])
	assert.Equal(t, "JOHN", restart[LabelFirstName])

	cont, err := Extract(tokens, Options{Match: DefaultMatchOptions(), Strategy: ContinueFromCursor})
	require.NoError(t, err)
	assert.Equal(t, "SMITH", cont[LabelFamilyName])
	_, found := cont[LabelFirstName]
	assert.False(t, found, "first name lies before the cursor")
	assert.Equal(t, "8.0", cont[LabelBand])
}

func TestExtractContinueSkipsValueToken(t *testing.T) {
	// the family name happens to read like the band label
	tokens := []string{"Family Name", "Band", "Band", "7.5"}

	cont, err := Extract(tokens, Options{Match: DefaultMatchOptions(), Strategy: ContinueFromCursor})
	require.NoError(t, err)
	assert.Equal(t, "Band", cont[LabelFamilyName])
	assert.Equal(t, "7.5", cont[LabelBand])

	restart, err := Extract(tokens, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "Band", restart[LabelBand], "restart reads the first band-like token")
}

func TestExtractUnknownStrategy(t *testing.T) {
	_, err := Extract([]string{"a"}, Options{Match: DefaultMatchOptions(), Strategy: "best"})
	assert.Error(t, err)
}

func TestDisplayItems(t *testing.T) {
	f := Fields{LabelFamilyName: "SMITH", LabelFirstName: "JOHN", LabelBand: "7.0"}
	assert.Equal(t, []Item{{Title: "Full name", Value: "SMITH JOHN"}, {Title: "Band score", Value: "7.0"}}, f.DisplayItems())
	assert.Equal(t, "JOHN", Fields{LabelFirstName: "JOHN"}.FullName())
	assert.Empty(t, Fields{}.DisplayItems())
}
