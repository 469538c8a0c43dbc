package deploy

import (
	"bytes"
	"fmt"
	"regexp"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

var projectNameSeeds = []string{
	"Joe's Barber & Co.",
	"  The Fade Room  ",
	"Café Crème Barbers",
	"ÅNGSTRÖM CUTS",
	"Mr. O’Neil's",
	"!!!",
	"",
	"日本の床屋",
	"ﬁne cuts",
	"The Really Quite Extraordinarily Long Named Gentlemen's Barbershop of Leeds",
	"a--b__c",
	"Barber-Shop-2024",
	"abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvw x",
}

func TestProjectName_Golden(t *testing.T) {
	var buf bytes.Buffer
	for _, seed := range projectNameSeeds {
		fmt.Fprintf(&buf, "[%s] %s\n", seed, ProjectName(seed))
	}
	g := goldie.New(t)
	g.Assert(t, "project_names", buf.Bytes())
}

var dnsSafe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func TestProjectName_Shape(t *testing.T) {
	for _, seed := range projectNameSeeds {
		name := ProjectName(seed)
		assert.Regexp(t, dnsSafe, name, seed)
		assert.LessOrEqual(t, len(name), 50, seed)
	}
}

func TestProjectName_Stable(t *testing.T) {
	assert.Equal(t, ProjectName("Joe's Barber & Co."), ProjectName("JOE'S barber  &  co"))
}
