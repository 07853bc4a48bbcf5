package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordEmpresa(t *testing.T) {
	fields := []string{"12345678", "PADARIA CENTRAL LTDA", "2062", "49", "10000,50", "03", ""}
	rec, err := ParseRecord(KindEmpresas, fields)
	require.NoError(t, err)

	emp, ok := rec.(*Empresa)
	require.True(t, ok)
	assert.Equal(t, "12345678", emp.CnpjBasico)
	assert.Equal(t, "PADARIA CENTRAL LTDA", emp.RazaoSocial)
	assert.False(t, emp.IsMEI())

	vals := emp.Values()
	require.Len(t, vals, 7)
	assert.Equal(t, 10000.50, vals[4], "decimal comma capital")
	assert.Nil(t, vals[6], "empty field stored as NULL")
}

func TestParseRecordTruncatesLongRows(t *testing.T) {
	fields := []string{"0001", "opcao extra", "S", "20200101", "", "S", "20200101", "trailing", "junk"}
	rec, err := ParseRecord(KindSimples, fields)
	require.NoError(t, err)

	s := rec.(*SimplesNacional)
	assert.Equal(t, "0001", s.CnpjBasico)
	assert.Equal(t, "20200101", s.DataExclusaoMEI)
}

func TestParseRecordShortRow(t *testing.T) {
	_, err := ParseRecord(KindEstabelecimentos, []string{"12345678", "0001"})
	assert.Error(t, err)
}

func TestParseRecordReference(t *testing.T) {
	rec, err := ParseRecord(KindMunicipios, []string{"7107", "SAO PAULO"})
	require.NoError(t, err)

	ref := rec.(*ReferenceCode)
	assert.Equal(t, KindMunicipios, ref.Kind())
	assert.Equal(t, []any{"7107", "SAO PAULO"}, ref.Values())
}

func TestEmpresaIsMEI(t *testing.T) {
	mei := &Empresa{PorteEmpresa: "01", NaturezaJuridica: "2135"}
	assert.True(t, mei.IsMEI())

	assert.False(t, (&Empresa{PorteEmpresa: "01", NaturezaJuridica: "2062"}).IsMEI())
	assert.False(t, (&Empresa{PorteEmpresa: "05", NaturezaJuridica: "2135"}).IsMEI())
}

func TestSimplesIsMEI(t *testing.T) {
	assert.True(t, (&SimplesNacional{OpcaoMEI: "S"}).IsMEI())
	assert.False(t, (&SimplesNacional{OpcaoMEI: "N"}).IsMEI())
	assert.False(t, (&SimplesNacional{}).IsMEI())
}

func TestSocioHasCPF(t *testing.T) {
	assert.True(t, (&Socio{CpfCnpjSocio: "12345678901"}).HasCPF())
	assert.False(t, (&Socio{CpfCnpjSocio: "12345678000195"}).HasCPF(), "14-digit CNPJ is not a CPF")
	assert.False(t, (&Socio{CpfCnpjSocio: "1234567890a"}).HasCPF())
	assert.False(t, (&Socio{}).HasCPF())
}

func TestCapitalValueMalformed(t *testing.T) {
	emp := &Empresa{CapitalSocial: "abc"}
	assert.Nil(t, emp.Values()[4])
}
