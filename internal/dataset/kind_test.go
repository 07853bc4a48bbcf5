package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want Kind
	}{
		{"Empresas0.zip", KindEmpresas},
		{"empresas3.zip", KindEmpresas},
		{"Estabelecimentos9.zip", KindEstabelecimentos},
		{"SOCIOS1.ZIP", KindSocios},
		{"Simples.zip", KindSimples},
		{"Cnaes.zip", KindCnaes},
		{"Municipios.zip", KindMunicipios},
		{"Naturezas.zip", KindNaturezas},
		{"Paises.zip", KindPaises},
		{"Qualificacoes.zip", KindQualificacoes},
		{"Motivos.zip", KindMotivos},
		{"Layout.pdf", KindUnknown},
		{"", KindUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.name), "Classify(%q)", c.name)
	}
}

func TestIsReference(t *testing.T) {
	for _, k := range ReferenceKinds {
		assert.True(t, k.IsReference(), "%s", k)
	}
	assert.False(t, KindEmpresas.IsReference())
	assert.False(t, KindSocios.IsReference())
	assert.False(t, KindUnknown.IsReference())
}

func TestSpecShape(t *testing.T) {
	empresas, ok := Spec(KindEmpresas)
	require.True(t, ok)
	assert.Equal(t, "empresas", empresas.Name)
	assert.Len(t, empresas.Columns, 7)
	assert.Equal(t, []string{"cnpj_basico"}, empresas.KeyColumns)

	estab, ok := Spec(KindEstabelecimentos)
	require.True(t, ok)
	assert.Len(t, estab.Columns, 30)
	assert.Equal(t, []string{"cnpj_basico", "cnpj_ordem", "cnpj_dv"}, estab.KeyColumns)

	socios, ok := Spec(KindSocios)
	require.True(t, ok)
	assert.Len(t, socios.Columns, 11)
	assert.Empty(t, socios.KeyColumns, "partner rows may repeat")

	cnaes, ok := Spec(KindCnaes)
	require.True(t, ok)
	assert.Equal(t, []string{"codigo", "descricao"}, cnaes.Columns)

	_, ok = Spec(KindUnknown)
	assert.False(t, ok)
}

func TestAllSpecsCoversEveryTable(t *testing.T) {
	specs := AllSpecs()
	require.Len(t, specs, 10)
	names := make(map[string]bool, len(specs))
	for _, s := range specs {
		names[s.Name] = true
		assert.Equal(t, s.MinFields, len(s.Columns), "%s", s.Name)
	}
	assert.True(t, names["empresas"])
	assert.True(t, names["estabelecimentos"])
	assert.True(t, names["simples"])
	assert.True(t, names["motivos"])
}
