package report

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/bumpcheck/internal/expect"
	"github.com/roach88/bumpcheck/internal/fixture"
)

const workflow = `name: Bump Version
on: push
jobs:
  bump:
    runs-on: ubuntu-latest
    steps:
      - uses: ./action
`

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRender_VersionOnly(t *testing.T) {
	doc := Render(Input{
		Suite:        "default",
		Ordinal:      1,
		WorkflowPath: ".github/workflows/push.yml",
		Workflow:     []byte(workflow),
		Message:      "feat: new feature",
		Expected:     expect.Resolve(fixture.Expectation{Version: "1.1.0"}, "run-7"),
	})

	newGoldie(t).Assert(t, "version_only", []byte(doc))
}

func TestRender_AllFields(t *testing.T) {
	doc := Render(Input{
		Suite:        "custom-branch",
		Ordinal:      2,
		WorkflowPath: ".github/workflows/push.yml",
		Workflow:     []byte(workflow),
		Message:      "feat: on release",
		Expected: expect.Resolve(fixture.Expectation{
			Version: "2.1.0",
			Tag:     "v2.1.0",
			Branch:  "release",
			Message: "ci: version bump to 2.1.0",
		}, "run-7"),
	})

	newGoldie(t).Assert(t, "all_fields", []byte(doc))
}

func TestRender_DiffersBetweenScenarios(t *testing.T) {
	in := Input{
		Suite:        "default",
		Ordinal:      1,
		WorkflowPath: ".github/workflows/push.yml",
		Workflow:     []byte(workflow),
		Message:      "same",
		Expected:     expect.Resolve(fixture.Expectation{Version: "1.0.1"}, "s"),
	}
	first := Render(in)
	in.Ordinal = 2
	second := Render(in)

	assert.NotEqual(t, first, second)
}

func TestExpectationText_OmitsDefaultTag(t *testing.T) {
	text := ExpectationText(expect.Resolve(fixture.Expectation{Version: "1.0.0"}, "s"))
	assert.Equal(t, "- **Version:** 1.0.0", text)
}
