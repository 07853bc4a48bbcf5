package dataset

import "strings"

// Kind identifies which logical record family an archive or extracted member
// carries. The upstream dataset encodes the family in the file name prefix.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmpresas
	KindEstabelecimentos
	KindSocios
	KindSimples
	KindCnaes
	KindMunicipios
	KindNaturezas
	KindPaises
	KindQualificacoes
	KindMotivos
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindEmpresas:         "empresas",
	KindEstabelecimentos: "estabelecimentos",
	KindSocios:           "socios",
	KindSimples:          "simples",
	KindCnaes:            "cnaes",
	KindMunicipios:       "municipios",
	KindNaturezas:        "naturezas",
	KindPaises:           "paises",
	KindQualificacoes:    "qualificacoes",
	KindMotivos:          "motivos",
}

func (k Kind) String() string { return kindNames[k] }

var classifyPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"empresas", KindEmpresas},
	{"estabelecimentos", KindEstabelecimentos},
	{"socios", KindSocios},
	{"simples", KindSimples},
	{"cnaes", KindCnaes},
	{"municipios", KindMunicipios},
	{"naturezas", KindNaturezas},
	{"paises", KindPaises},
	{"qualificacoes", KindQualificacoes},
	{"motivos", KindMotivos},
}

// Classify maps an archive or member file name to its record kind by
// case-insensitive prefix match. Unrecognized names return KindUnknown;
// callers log and skip those files.
func Classify(filename string) Kind {
	name := strings.ToLower(filename)
	for _, c := range classifyPrefixes {
		if strings.HasPrefix(name, c.prefix) {
			return c.kind
		}
	}
	return KindUnknown
}

// ReferenceKinds lists the six code→description lookup families.
var ReferenceKinds = []Kind{
	KindCnaes, KindMunicipios, KindNaturezas,
	KindPaises, KindQualificacoes, KindMotivos,
}

// IsReference reports whether k is one of the simple lookup kinds.
func (k Kind) IsReference() bool {
	switch k {
	case KindCnaes, KindMunicipios, KindNaturezas, KindPaises, KindQualificacoes, KindMotivos:
		return true
	}
	return false
}

// TableSpec describes the relational table backing one record kind. Column
// order matches the positional layout of the source files exactly.
type TableSpec struct {
	Name string
	// Columns in source-file order.
	Columns []string
	// KeyColumns is empty for tables without a primary key (socios).
	KeyColumns []string
	// MinFields is the number of leading source fields a row must carry to
	// be importable; longer rows are truncated to it.
	MinFields int
}

var tableSpecs = map[Kind]TableSpec{
	KindEmpresas: {
		Name: "empresas",
		Columns: []string{
			"cnpj_basico", "razao_social", "natureza_juridica",
			"qualificacao_responsavel", "capital_social", "porte_empresa",
			"ente_federativo",
		},
		KeyColumns: []string{"cnpj_basico"},
		MinFields:  7,
	},
	KindEstabelecimentos: {
		Name: "estabelecimentos",
		Columns: []string{
			"cnpj_basico", "cnpj_ordem", "cnpj_dv",
			"identificador_matriz_filial", "nome_fantasia",
			"situacao_cadastral", "data_situacao_cadastral",
			"motivo_situacao_cadastral", "nome_cidade_exterior", "codigo_pais",
			"data_inicio_atividade", "cnae_fiscal_principal",
			"cnae_fiscal_secundaria", "tipo_logradouro", "logradouro",
			"numero", "complemento", "bairro", "cep", "uf", "codigo_municipio",
			"ddd_1", "telefone_1", "ddd_2", "telefone_2", "ddd_fax", "fax",
			"correio_eletronico", "situacao_especial", "data_situacao_especial",
		},
		KeyColumns: []string{"cnpj_basico", "cnpj_ordem", "cnpj_dv"},
		MinFields:  30,
	},
	KindSocios: {
		Name: "socios",
		Columns: []string{
			"cnpj_basico", "identificador_socio", "nome_socio",
			"cpf_cnpj_socio", "codigo_qualificacao_socio",
			"data_entrada_sociedade", "codigo_pais", "representante_legal",
			"nome_representante", "codigo_qualificacao_representante",
			"faixa_etaria",
		},
		MinFields: 11,
	},
	KindSimples: {
		Name: "simples",
		Columns: []string{
			"cnpj_basico", "opcao_simples", "data_opcao_simples",
			"data_exclusao_simples", "opcao_mei", "data_opcao_mei",
			"data_exclusao_mei",
		},
		KeyColumns: []string{"cnpj_basico"},
		MinFields:  7,
	},
	KindCnaes:         referenceSpec("cnaes"),
	KindMunicipios:    referenceSpec("municipios"),
	KindNaturezas:     referenceSpec("naturezas"),
	KindPaises:        referenceSpec("paises"),
	KindQualificacoes: referenceSpec("qualificacoes"),
	KindMotivos:       referenceSpec("motivos"),
}

func referenceSpec(name string) TableSpec {
	return TableSpec{
		Name:       name,
		Columns:    []string{"codigo", "descricao"},
		KeyColumns: []string{"codigo"},
		MinFields:  2,
	}
}

// Spec returns the table spec for a kind. The second result is false for
// KindUnknown.
func Spec(k Kind) (TableSpec, bool) {
	s, ok := tableSpecs[k]
	return s, ok
}

// AllSpecs returns every table spec, for schema creation and stats.
func AllSpecs() []TableSpec {
	kinds := []Kind{
		KindEmpresas, KindEstabelecimentos, KindSocios, KindSimples,
		KindCnaes, KindMunicipios, KindNaturezas, KindPaises,
		KindQualificacoes, KindMotivos,
	}
	specs := make([]TableSpec, 0, len(kinds))
	for _, k := range kinds {
		specs = append(specs, tableSpecs[k])
	}
	return specs
}
