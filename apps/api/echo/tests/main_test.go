package tests

import (
	"os"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/attendance/apps/api/echo"
	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
	barcodesvc "github.com/trezcool/attendance/services/barcode"
	camerasvc "github.com/trezcool/attendance/services/camera"
	emailsvc "github.com/trezcool/attendance/services/email"
	sheetsvc "github.com/trezcool/attendance/services/sheet"
	inmemdb "github.com/trezcool/attendance/storage/database/inmem"
)

var (
	conf    *core.Config
	app     echoapi.Server
	sessSvc session.Service
)

func TestMain(m *testing.M) {
	conf = core.NewTestConfig()
	logger := nopLogger{}

	// set up services
	decoder := barcodesvc.NewDecoder()
	sessSvc = session.NewService(session.Deps{
		Conf:    conf,
		Logger:  logger,
		Repo:    inmemdb.NewScanRecordRepository(inmemdb.Open()),
		Sheets:  sheetsvc.NewCodec(),
		Decoder: decoder,
		Cameras: camerasvc.NewOpener(conf, decoder),
		MailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	})

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)

	// set up server
	app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		SessionSvc:     sessSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})

	// run tests
	code := m.Run()

	// clean up
	sessSvc.Close()
	os.Exit(code)
}
