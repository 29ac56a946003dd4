package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/etda/school/apps/bootstrap"
	. "github.com/etda/school/apps/api/echo"
	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/report"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
	emailsvc "github.com/etda/school/services/email"
	exportsvc "github.com/etda/school/services/export"
	"github.com/etda/school/storage/cache"
	inmemdb "github.com/etda/school/storage/database/inmem"
	testutil "github.com/etda/school/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

// testApp is a server over a fresh in-memory database.
type testApp struct {
	*Server
	conf    *core.Config
	mailSvc *emailsvc.ConsoleServiceMock

	usrRepo   user.Repository
	subRepo   subject.Repository
	classRepo class.Repository
	bimRepo   bimester.Repository
	stdRepo   student.Repository
	tchRepo   teacher.Repository
	gradeRepo grade.Repository
	attRepo   attendance.Repository
}

// setup builds the app. opts adjust the config before the services read it.
func setup(t *testing.T, opts ...func(*core.Config)) *testApp {
	t.Helper()
	conf := testutil.NewConfig()
	for _, opt := range opts {
		opt(conf)
	}
	logger := testutil.NewLogger(conf, testing.Verbose())

	db := inmemdb.Open()
	tx := inmemdb.NewTransactor(db)
	app := &testApp{
		conf:      conf,
		mailSvc:   emailsvc.NewConsoleServiceMock(conf, logger),
		usrRepo:   inmemdb.NewUserRepository(db),
		subRepo:   inmemdb.NewSubjectRepository(db),
		classRepo: inmemdb.NewClassRepository(db),
		bimRepo:   inmemdb.NewBimesterRepository(db),
		stdRepo:   inmemdb.NewStudentRepository(db),
		tchRepo:   inmemdb.NewTeacherRepository(db),
		gradeRepo: inmemdb.NewGradeRepository(db),
		attRepo:   inmemdb.NewAttendanceRepository(db),
	}

	usrSvc := user.NewService(app.usrRepo, app.mailSvc, conf)
	subSvc := subject.NewService(app.subRepo)
	clsSvc := class.NewService(app.classRepo)
	bimSvc := bimester.NewService(app.bimRepo, subSvc)
	stdSvc := student.NewService(tx, app.stdRepo, app.classRepo, usrSvc, app.mailSvc)
	tchSvc := teacher.NewService(tx, app.tchRepo, subSvc, usrSvc, app.mailSvc)
	grdSvc := grade.NewService(tx, app.gradeRepo, app.stdRepo, bimSvc, tchSvc, grade.NewPolicy(conf))
	attSvc := attendance.NewService(tx, app.attRepo, app.stdRepo, bimSvc, tchSvc)
	store := cache.NewMemoryCache()

	validate, translator := bootstrap.NewValidator()
	app.Server = NewServer(Deps{
		Conf:          conf,
		Logger:        logger,
		Cache:         store,
		Validate:      validate,
		Translator:    translator,
		MailSvc:       app.mailSvc,
		Exporters:     exportsvc.NewDefaultRegistry(),
		UserSvc:       usrSvc,
		StudentSvc:    stdSvc,
		TeacherSvc:    tchSvc,
		SubjectSvc:    subSvc,
		ClassSvc:      clsSvc,
		BimesterSvc:   bimSvc,
		GradeSvc:      grdSvc,
		AttendanceSvc: attSvc,
		ReportSvc: report.NewService(report.Deps{
			Students:   stdSvc,
			Teachers:   tchSvc,
			Subjects:   subSvc,
			Classes:    clsSvc,
			Bimesters:  bimSvc,
			Grades:     grdSvc,
			Attendance: attSvc,
		}, store, conf, logger),
	})
	return app
}

func (app *testApp) createUser(t *testing.T, name, email, role string, isActive bool) user.User {
	t.Helper()
	return testutil.CreateUser(t, app.usrRepo, name, email, "S3cr3t!pwd", role, isActive)
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(app.conf, NewClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode(): %v; body %s", err, rec.Body.String())
	}
}

// checkCodeAndData compares the status code, then the JSON body when wantData is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}
