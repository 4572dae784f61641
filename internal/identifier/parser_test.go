package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(DefaultSchemeTable())
	require.NoError(t, err)
	return p
}

func TestParse_CurrentNational(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("国械注准20153540528")
	assert.True(t, res.OK)
	assert.Equal(t, LevelFull, res.Level)
	assert.Equal(t, RegnoRegistration, res.RegnoType)
	assert.Equal(t, ApprovalNational, res.ApprovalLevel)
	assert.Equal(t, OriginDomestic, res.OriginType)
	assert.Equal(t, 2015, res.FirstYear)
	assert.Equal(t, 3, res.ManagementClass)
	assert.Equal(t, "54", res.CategoryCode)
	assert.Equal(t, "0528", res.SerialNo)
	assert.False(t, res.IsLegacyFormat)
}

func TestParse_CurrentProvincialAndImported(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("粤械注准20162200045")
	assert.True(t, res.OK)
	assert.Equal(t, ApprovalProvincial, res.ApprovalLevel)
	assert.Equal(t, 2, res.ManagementClass)

	res = p.Parse("国械注进20173540112")
	assert.True(t, res.OK)
	assert.Equal(t, OriginImported, res.OriginType)
}

func TestParse_CurrentShortSerialIsPartial(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("国械注准20231234")
	assert.True(t, res.OK)
	assert.Equal(t, LevelPartial, res.Level)
	assert.Equal(t, "1234", res.SerialNo)
	assert.Zero(t, res.ManagementClass)
	assert.NotEmpty(t, res.Reason)
}

func TestParse_Filing(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("粤械备（2014）0023号")
	assert.True(t, res.OK)
	assert.Equal(t, LevelFull, res.Level)
	assert.Equal(t, RegnoFiling, res.RegnoType)
	assert.Equal(t, ApprovalProvincial, res.ApprovalLevel)
	assert.Equal(t, 1, res.ManagementClass)
	assert.Equal(t, 2014, res.FirstYear)
	assert.Equal(t, "0023", res.SerialNo)
}

func TestParse_LegacyWithActionSuffix(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("国食药监械准字2008第3450116号(更)")
	assert.True(t, res.OK)
	assert.Equal(t, LevelFull, res.Level)
	assert.True(t, res.IsLegacyFormat)
	assert.Equal(t, "更", res.ActionSuffix)
	assert.Equal(t, ApprovalNational, res.ApprovalLevel)
	assert.Equal(t, OriginDomestic, res.OriginType)
	assert.Equal(t, 2008, res.FirstYear)
	assert.Equal(t, 3, res.ManagementClass)
	assert.Equal(t, "45", res.CategoryCode)
	assert.Equal(t, "0116", res.SerialNo)
}

func TestParse_LegacyRegionalTwoCharPrefix(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("浙杭食药监械准字2010第1234567号")
	assert.True(t, res.OK)
	assert.Equal(t, LevelFull, res.Level)
	assert.Equal(t, ApprovalProvincial, res.ApprovalLevel)
	assert.Equal(t, 1, res.ManagementClass)
}

func TestParse_LegacyMissingApprovalChar(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("国药监械字2002第1234567号")
	assert.True(t, res.OK)
	assert.Equal(t, LevelPartial, res.Level)
	assert.True(t, res.IsLegacyFormat)
	assert.Equal(t, OriginType(""), res.OriginType)
}

func TestParse_CoarseLegacyBucket(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("国药械管字2005第123号")
	assert.True(t, res.OK)
	assert.Equal(t, LevelClassified, res.Level)
	assert.True(t, res.IsLegacyFormat)
	assert.Zero(t, res.ManagementClass)
	assert.Empty(t, res.SerialNo)
}

func TestParse_Failures(t *testing.T) {
	p := newTestParser(t)

	res := p.Parse("随机无效编号")
	assert.False(t, res.OK)
	assert.Equal(t, LevelFail, res.Level)
	assert.Equal(t, RegnoUnknown, res.RegnoType)

	res = p.Parse("   ")
	assert.False(t, res.OK)
	assert.Equal(t, LevelFail, res.Level)
}

func TestParse_CustomSchemeTable(t *testing.T) {
	table := DefaultSchemeTable()
	table.ActionSuffixes = append(table.ActionSuffixes, "改")
	p, err := NewParser(table)
	require.NoError(t, err)

	res := p.Parse("国食药监械准字2008第3450116号(改)")
	assert.True(t, res.OK)
	assert.Equal(t, "改", res.ActionSuffix)
}
