package mustang

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zugferd/pkg/services"
)

const invalidReport = `Mustang 2.16.0 starting
<?xml version="1.0" encoding="UTF-8"?>
<validation filename="invoice.pdf" datetime="2025-03-01 12:00:00">
  <pdf>
    <info><signature>Mustang Project</signature></info>
    <summary status="valid"/>
  </pdf>
  <xml>
    <info>
      <version>2</version>
      <profile>urn:cen.eu:en16931:2017</profile>
    </info>
    <messages>
      <error type="4" location="/rsm:CrossIndustryInvoice">[BR-CO-15] Invoice total amount with VAT = total without VAT + total VAT.</error>
      <warning type="27">Font not embedded</warning>
      <notice type="28">Schematron version 1.3.12</notice>
    </messages>
    <summary status="invalid"/>
  </xml>
  <summary status="invalid"/>
</validation>
`

func TestParseReport(t *testing.T) {
	report, err := ParseReport([]byte(invalidReport))
	require.NoError(t, err)

	assert.False(t, report.Valid)
	require.NotNil(t, report.PDFValid)
	assert.True(t, *report.PDFValid)
	assert.False(t, report.XMLValid)
	assert.Equal(t, "2", report.Version)
	assert.Equal(t, "urn:cen.eu:en16931:2017", report.Profile)
	assert.Equal(t, "Mustang Project", report.Signature)

	require.Len(t, report.Messages, 3)
	assert.Equal(t, services.SeverityError, report.Messages[0].Severity)
	assert.Equal(t, "4", report.Messages[0].Type)
	assert.Equal(t, "/rsm:CrossIndustryInvoice", report.Messages[0].Location)
	assert.Contains(t, report.Messages[0].Text, "BR-CO-15")
	assert.Equal(t, services.SeverityWarning, report.Messages[1].Severity)
	assert.Equal(t, services.SeverityNotice, report.Messages[2].Severity)
	assert.Equal(t, "invalid: 1 error, 1 warning, 1 notice", report.Summary())
}

func TestParseReportXMLOnly(t *testing.T) {
	report, err := ParseReport([]byte(`<validation><xml><summary status="valid"/></xml></validation>`))
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.Nil(t, report.PDFValid)
	assert.Empty(t, report.Messages)
}

func TestParseReportMissing(t *testing.T) {
	_, err := ParseReport([]byte("Exception in thread main"))
	assert.ErrorIs(t, err, ErrNoReport)

	_, err = ParseReport([]byte("<validation><xml>"))
	assert.ErrorIs(t, err, ErrNoReport)
}

type call struct {
	name string
	args []string
}

func fakeToolkit(stdout, stderr string, err error) (*Toolkit, *[]call) {
	var calls []call
	tk := New("java -jar /opt/Mustang-CLI.jar")
	tk.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		calls = append(calls, call{name: name, args: args})
		return []byte(stdout), []byte(stderr), err
	}
	return tk, &calls
}

func TestValidateInvalidInvoiceIsReport(t *testing.T) {
	tk, calls := fakeToolkit(invalidReport, "", errors.New("exit status 255"))

	report, err := tk.Validate(context.Background(), "invoice.pdf")
	require.NoError(t, err)
	assert.False(t, report.Valid)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, "java", c.name)
	assert.Equal(t, []string{"-jar", "/opt/Mustang-CLI.jar", "--action", "validate", "--source", "invoice.pdf"}, c.args)
}

func TestValidateToolFailure(t *testing.T) {
	tk, _ := fakeToolkit("", "Error: Unable to access jarfile", errors.New("exit status 1"))

	_, err := tk.Validate(context.Background(), "invoice.pdf")
	require.ErrorIs(t, err, ErrToolkitFailed)

	var tkErr *ToolkitError
	require.True(t, errors.As(err, &tkErr))
	assert.Equal(t, "Validate", tkErr.Op)
	assert.Equal(t, "Error: Unable to access jarfile", tkErr.Stderr)
}

func TestValidateJavaMissing(t *testing.T) {
	tk, _ := fakeToolkit("", "", &exec.Error{Name: "java", Err: exec.ErrNotFound})

	_, err := tk.Validate(context.Background(), "invoice.pdf")
	assert.ErrorIs(t, err, ErrToolkitMissing)
}

func TestCombine(t *testing.T) {
	tk, calls := fakeToolkit("", "", nil)

	err := tk.Combine(context.Background(), services.CombineRequest{
		PDFPath:    "in.pdf",
		XMLPath:    "factur-x.xml",
		OutputPath: "out.pdf",
		Profile:    "en16931",
	})
	require.NoError(t, err)

	args := (*calls)[0].args
	assert.Contains(t, args, "combine")
	assert.Equal(t, "E", args[len(args)-1])
	assert.Equal(t, "--profile", args[len(args)-2])

	err = tk.Combine(context.Background(), services.CombineRequest{Profile: "fancy"})
	assert.ErrorIs(t, err, ErrUnknownProfile)
	assert.Len(t, *calls, 1)
}

func TestVisualize(t *testing.T) {
	tk, calls := fakeToolkit("", "", nil)

	require.NoError(t, tk.Visualize(context.Background(), "factur-x.xml", "invoice.html"))
	assert.Equal(t, []string{"-jar", "/opt/Mustang-CLI.jar", "--action", "visualize", "--source", "factur-x.xml", "--out", "invoice.html"}, (*calls)[0].args)
}

func TestDefaultCommand(t *testing.T) {
	tk := New("  ")
	assert.Equal(t, []string{"java", "-jar", "Mustang-CLI.jar"}, tk.command)
}
