package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/finbr/pkg/config"
	"github.com/yurifrl/finbr/pkg/service"
	"github.com/yurifrl/finbr/pkg/store"
	"github.com/yurifrl/finbr/pkg/store/memory"
)

const statementOFX = `OFXHEADER:100
<OFX>
<BANKACCTFROM><BANKID>0341<ACCTID>56789-0</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><DTPOSTED>20240301<TRNAMT>-3200.00<FITID>F1<MEMO>ALUGUEL IMOBILIARIA</STMTTRN>
<STMTTRN><DTPOSTED>20240302<TRNAMT>-89.90<FITID>F2<MEMO>PADARIA</STMTTRN>
</BANKTRANLIST>
</OFX>
`

const invoiceXML = `<NFe><infNFe Id="NFe3524"><ide><nNF>77</nNF></ide><emit><CNPJ>1</CNPJ></emit><dest><CPF>2</CPF></dest></infNFe></NFe>`

const seedYAML = `
company_id: acme
types:
  - id: desp
    name: Despesas
    groups:
      - id: adm
        name: Administrativas
        commitments:
          - id: aluguel
            name: Aluguel
rules:
  - id: r1
    contains: IMOBILIARIA
    commitment: aluguel
`

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, maxUpload int64) (*Server, *memory.Store) {
	t.Helper()
	s := memory.New()
	logger := log.New(io.Discard)
	p := service.NewProcessor(logger, s, nil, service.Options{})

	sd, err := store.ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.NoError(t, p.Seed(context.Background(), sd))

	cfg := config.ServerConfig{AllowedOrigins: []string{"*"}, MaxUploadBytes: maxUpload}
	return New(cfg, logger, p), s
}

func multipartRequest(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestStatementPreview(t *testing.T) {
	srv, s := newTestServer(t, 0)

	rec := serve(srv, multipartRequest(t, "/api/v1/statements", "marco.ofx", statementOFX, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	stmt := body["statement"].(map[string]any)
	assert.Equal(t, "56789-0", stmt["account_id"])
	assert.Len(t, stmt["transactions"], 2)
	assert.EqualValues(t, 0, body["inserted"])

	ids, err := s.ExistingFITIDs(context.Background(), "acme", "56789-0")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStatementPersistAndClassify(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	fields := map[string]string{"company_id": "acme", "persist": "true"}

	rec := serve(srv, multipartRequest(t, "/api/v1/statements", "marco.ofx", statementOFX, fields))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode(t, rec)["inserted"])

	rec = serve(srv, multipartRequest(t, "/api/v1/statements", "marco.ofx", statementOFX, fields))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["inserted"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader(`{"company_id":"acme"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode(t, rec)
	assert.EqualValues(t, 1, report["writes"])
	assert.Equal(t, false, report["dry_run"])
	assert.Len(t, report["results"], 2)
}

func TestStatementErrors(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	rec := serve(srv, multipartRequest(t, "/api/v1/statements", "broken.ofx", "<OFX><BANKTRANLIST></BANKTRANLIST></OFX>", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "invalid OFX format")

	rec = serve(srv, multipartRequest(t, "/api/v1/statements", "nota.xml", invoiceXML, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(srv, multipartRequest(t, "/api/v1/statements", "", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(srv, multipartRequest(t, "/api/v1/statements", "marco.ofx", statementOFX, map[string]string{"persist": "true"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "company_id required", decode(t, rec)["error"])
}

func TestUploadTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, 64)
	rec := serve(srv, multipartRequest(t, "/api/v1/statements", "marco.ofx", statementOFX, nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestInvoice(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	fields := map[string]string{"company_id": "acme", "persist": "1"}

	rec := serve(srv, multipartRequest(t, "/api/v1/invoices", "nota.xml", invoiceXML, fields))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["created"])
	assert.Equal(t, "3524", body["invoice"].(map[string]any)["access_key"])

	rec = serve(srv, multipartRequest(t, "/api/v1/invoices", "nota.xml", invoiceXML, fields))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["created"])

	rec = serve(srv, multipartRequest(t, "/api/v1/invoices", "nota.xml", "<rss/>", fields))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "invalid NFe document")
}

func TestClassifyRequiresCompany(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", strings.NewReader(`{"dry_run":true}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, serve(srv, req).Code)
}

func TestHierarchy(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/hierarchy/types?company_id=acme", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["types"], 1)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/hierarchy/groups?company_id=acme&type_id=desp", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["groups"], 1)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/hierarchy/commitments?company_id=acme&group_id=other", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["commitments"])

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/hierarchy/types", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := serve(srv, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
