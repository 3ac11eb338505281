// Package shared builds the dependencies common to the API server and the admin CLI.
package shared

import (
	"context"
	"fmt"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/attendance/core"
	"github.com/trezcool/attendance/core/session"
	barcodesvc "github.com/trezcool/attendance/services/barcode"
	camerasvc "github.com/trezcool/attendance/services/camera"
	emailsvc "github.com/trezcool/attendance/services/email"
	sheetsvc "github.com/trezcool/attendance/services/sheet"
	"github.com/trezcool/attendance/storage/database"
	gormrepos "github.com/trezcool/attendance/storage/database/gormdb"
	inmemdb "github.com/trezcool/attendance/storage/database/inmem"
	sqlxrepos "github.com/trezcool/attendance/storage/database/sqlx"
)

// OpenRepository opens the scan audit store selected by conf.Database.Engine.
// The returned func closes it.
func OpenRepository(ctx context.Context, conf *core.Config) (session.Repository, func() error, error) {
	nop := func() error { return nil }

	switch conf.Database.Engine {
	case database.EngineInMem, "":
		return inmemdb.NewScanRecordRepository(inmemdb.Open()), nop, nil

	case database.EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, nil, err
		}
		if err = database.Migrate(ctx, db.DB, "postgres", "up"); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlxrepos.NewScanRecordRepository(db), db.Close, nil

	case database.EngineSQLite:
		db, err := gormrepos.Open(conf.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return gormrepos.NewScanRecordRepository(db), func() error { return gormrepos.Close(db) }, nil
	}
	return nil, nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

// NewMailService sends through Sendgrid when an API key is configured, and prints to stdout otherwise.
func NewMailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func NewSessionService(conf *core.Config, logger core.Logger, repo session.Repository, mailSvc core.EmailService) session.Service {
	decoder := barcodesvc.NewDecoder()
	return session.NewService(session.Deps{
		Conf:    conf,
		Logger:  logger,
		Repo:    repo,
		Sheets:  sheetsvc.NewCodec(),
		Decoder: decoder,
		Cameras: camerasvc.NewOpener(conf, decoder),
		MailSvc: mailSvc,
	})
}

// NewValidator returns a validator using english error messages.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)
	return validate, translator
}

// DescribeDatabase is a log-friendly description of the configured audit store.
func DescribeDatabase(conf *core.Config) string {
	switch conf.Database.Engine {
	case database.EnginePostgres:
		return fmt.Sprintf("postgres (%s/%s)", conf.Database.Address(), conf.Database.Name)
	case database.EngineSQLite:
		return fmt.Sprintf("sqlite (%s)", conf.Database.Path)
	}
	return "in memory"
}
