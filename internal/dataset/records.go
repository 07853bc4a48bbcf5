package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// Upstream code values used by the MEI classification rule.
const (
	PorteMicroEmpresa     = "01"
	NaturezaEmpresarioMEI = "2135"
	OpcaoMEISim           = "S"
)

// Record is one parsed source row, ready for positional insertion into the
// table described by Spec(r.Kind()). Parsing happens once, at this boundary;
// everything downstream works with named fields.
type Record interface {
	Kind() Kind
	// Values returns the insert tuple in column order. Empty source fields
	// become nil so the store records NULL rather than "".
	Values() []any
}

// Empresa is one organization row, keyed by the 8-digit base CNPJ.
type Empresa struct {
	CnpjBasico              string
	RazaoSocial             string
	NaturezaJuridica        string
	QualificacaoResponsavel string
	CapitalSocial           string
	PorteEmpresa            string
	EnteFederativo          string
}

func (e *Empresa) Kind() Kind { return KindEmpresas }

func (e *Empresa) Values() []any {
	return []any{
		nullIfEmpty(e.CnpjBasico), nullIfEmpty(e.RazaoSocial),
		nullIfEmpty(e.NaturezaJuridica), nullIfEmpty(e.QualificacaoResponsavel),
		capitalValue(e.CapitalSocial), nullIfEmpty(e.PorteEmpresa),
		nullIfEmpty(e.EnteFederativo),
	}
}

// IsMEI reports whether the organization matches the individual
// micro-entrepreneur size and legal-nature combination.
func (e *Empresa) IsMEI() bool {
	return e.PorteEmpresa == PorteMicroEmpresa && e.NaturezaJuridica == NaturezaEmpresarioMEI
}

// Estabelecimento is one establishment row, keyed by the full CNPJ triple.
type Estabelecimento struct {
	CnpjBasico                string
	CnpjOrdem                 string
	CnpjDV                    string
	IdentificadorMatrizFilial string
	NomeFantasia              string
	SituacaoCadastral         string
	DataSituacaoCadastral     string
	MotivoSituacaoCadastral   string
	NomeCidadeExterior        string
	CodigoPais                string
	DataInicioAtividade       string
	CnaeFiscalPrincipal       string
	CnaeFiscalSecundaria      string
	TipoLogradouro            string
	Logradouro                string
	Numero                    string
	Complemento               string
	Bairro                    string
	CEP                       string
	UF                        string
	CodigoMunicipio           string
	DDD1                      string
	Telefone1                 string
	DDD2                      string
	Telefone2                 string
	DDDFax                    string
	Fax                       string
	CorreioEletronico         string
	SituacaoEspecial          string
	DataSituacaoEspecial      string
}

func (e *Estabelecimento) Kind() Kind { return KindEstabelecimentos }

func (e *Estabelecimento) Values() []any {
	fields := []string{
		e.CnpjBasico, e.CnpjOrdem, e.CnpjDV, e.IdentificadorMatrizFilial,
		e.NomeFantasia, e.SituacaoCadastral, e.DataSituacaoCadastral,
		e.MotivoSituacaoCadastral, e.NomeCidadeExterior, e.CodigoPais,
		e.DataInicioAtividade, e.CnaeFiscalPrincipal, e.CnaeFiscalSecundaria,
		e.TipoLogradouro, e.Logradouro, e.Numero, e.Complemento, e.Bairro,
		e.CEP, e.UF, e.CodigoMunicipio, e.DDD1, e.Telefone1, e.DDD2,
		e.Telefone2, e.DDDFax, e.Fax, e.CorreioEletronico,
		e.SituacaoEspecial, e.DataSituacaoEspecial,
	}
	vals := make([]any, len(fields))
	for i, f := range fields {
		vals[i] = nullIfEmpty(f)
	}
	return vals
}

// Socio is one partner row. The relation allows duplicates, so there is no
// key.
type Socio struct {
	CnpjBasico                      string
	IdentificadorSocio              string
	NomeSocio                       string
	CpfCnpjSocio                    string
	CodigoQualificacaoSocio         string
	DataEntradaSociedade            string
	CodigoPais                      string
	RepresentanteLegal              string
	NomeRepresentante               string
	CodigoQualificacaoRepresentante string
	FaixaEtaria                     string
}

func (s *Socio) Kind() Kind { return KindSocios }

func (s *Socio) Values() []any {
	fields := []string{
		s.CnpjBasico, s.IdentificadorSocio, s.NomeSocio, s.CpfCnpjSocio,
		s.CodigoQualificacaoSocio, s.DataEntradaSociedade, s.CodigoPais,
		s.RepresentanteLegal, s.NomeRepresentante,
		s.CodigoQualificacaoRepresentante, s.FaixaEtaria,
	}
	vals := make([]any, len(fields))
	for i, f := range fields {
		vals[i] = nullIfEmpty(f)
	}
	return vals
}

// HasCPF reports whether the partner identifier is a personal CPF: exactly
// 11 digits. Corporate CNPJ identifiers carry 14 digits and are never
// masked.
func (s *Socio) HasCPF() bool {
	return len(s.CpfCnpjSocio) == 11 && allDigits(s.CpfCnpjSocio)
}

// SimplesNacional is the simplified-tax-regime row for one base CNPJ.
type SimplesNacional struct {
	CnpjBasico          string
	OpcaoSimples        string
	DataOpcaoSimples    string
	DataExclusaoSimples string
	OpcaoMEI            string
	DataOpcaoMEI        string
	DataExclusaoMEI     string
}

func (s *SimplesNacional) Kind() Kind { return KindSimples }

func (s *SimplesNacional) Values() []any {
	fields := []string{
		s.CnpjBasico, s.OpcaoSimples, s.DataOpcaoSimples,
		s.DataExclusaoSimples, s.OpcaoMEI, s.DataOpcaoMEI, s.DataExclusaoMEI,
	}
	vals := make([]any, len(fields))
	for i, f := range fields {
		vals[i] = nullIfEmpty(f)
	}
	return vals
}

// IsMEI reports whether the row carries an explicit MEI opt-in.
func (s *SimplesNacional) IsMEI() bool { return s.OpcaoMEI == OpcaoMEISim }

// ReferenceCode is one code→description lookup row for any of the six
// reference kinds.
type ReferenceCode struct {
	RefKind   Kind
	Codigo    string
	Descricao string
}

func (r *ReferenceCode) Kind() Kind { return r.RefKind }

func (r *ReferenceCode) Values() []any {
	return []any{nullIfEmpty(r.Codigo), nullIfEmpty(r.Descricao)}
}

// ParseRecord maps cleaned positional fields to a typed record. Rows shorter
// than the kind's minimum field count are rejected; longer rows are
// truncated to it.
func ParseRecord(kind Kind, fields []string) (Record, error) {
	spec, ok := Spec(kind)
	if !ok {
		return nil, fmt.Errorf("no table spec for kind %q", kind)
	}
	if len(fields) < spec.MinFields {
		return nil, fmt.Errorf("%s row has %d fields, need %d", kind, len(fields), spec.MinFields)
	}
	f := fields[:spec.MinFields]

	switch kind {
	case KindEmpresas:
		return &Empresa{
			CnpjBasico: f[0], RazaoSocial: f[1], NaturezaJuridica: f[2],
			QualificacaoResponsavel: f[3], CapitalSocial: f[4],
			PorteEmpresa: f[5], EnteFederativo: f[6],
		}, nil
	case KindEstabelecimentos:
		return &Estabelecimento{
			CnpjBasico: f[0], CnpjOrdem: f[1], CnpjDV: f[2],
			IdentificadorMatrizFilial: f[3], NomeFantasia: f[4],
			SituacaoCadastral: f[5], DataSituacaoCadastral: f[6],
			MotivoSituacaoCadastral: f[7], NomeCidadeExterior: f[8],
			CodigoPais: f[9], DataInicioAtividade: f[10],
			CnaeFiscalPrincipal: f[11], CnaeFiscalSecundaria: f[12],
			TipoLogradouro: f[13], Logradouro: f[14], Numero: f[15],
			Complemento: f[16], Bairro: f[17], CEP: f[18], UF: f[19],
			CodigoMunicipio: f[20], DDD1: f[21], Telefone1: f[22],
			DDD2: f[23], Telefone2: f[24], DDDFax: f[25], Fax: f[26],
			CorreioEletronico: f[27], SituacaoEspecial: f[28],
			DataSituacaoEspecial: f[29],
		}, nil
	case KindSocios:
		return &Socio{
			CnpjBasico: f[0], IdentificadorSocio: f[1], NomeSocio: f[2],
			CpfCnpjSocio: f[3], CodigoQualificacaoSocio: f[4],
			DataEntradaSociedade: f[5], CodigoPais: f[6],
			RepresentanteLegal: f[7], NomeRepresentante: f[8],
			CodigoQualificacaoRepresentante: f[9], FaixaEtaria: f[10],
		}, nil
	case KindSimples:
		return &SimplesNacional{
			CnpjBasico: f[0], OpcaoSimples: f[1], DataOpcaoSimples: f[2],
			DataExclusaoSimples: f[3], OpcaoMEI: f[4], DataOpcaoMEI: f[5],
			DataExclusaoMEI: f[6],
		}, nil
	default:
		return &ReferenceCode{RefKind: kind, Codigo: f[0], Descricao: f[1]}, nil
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// capitalValue converts the dataset's decimal-comma capital amount to a
// float, or NULL when absent or malformed.
func capitalValue(s string) any {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}
	return v
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
