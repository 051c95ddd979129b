package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "StartTest"); got != "Start Test" {
		t.Errorf("T(StartTest) = %q, want 'Start Test'", got)
	}
	if got := T(ctx, "FinishTest"); got != "Finish Test" {
		t.Errorf("T(FinishTest) = %q, want 'Finish Test'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "StartTest"); got != "Начать тест" {
		t.Errorf("T(StartTest) = %q, want 'Начать тест'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "AnswerAllWarning", 1)
	if got1 != "Please answer all questions before finishing the test. 1 question is unanswered." {
		t.Errorf("Tp(AnswerAllWarning, 1) = %q", got1)
	}
	got3 := Tp(ctx, "AnswerAllWarning", 3)
	if got3 != "Please answer all questions before finishing the test. 3 questions are unanswered." {
		t.Errorf("Tp(AnswerAllWarning, 3) = %q", got3)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "QuestionNofM", map[string]any{"N": 2, "Total": 5})
	if got != "Question 2 of 5" {
		t.Errorf("Td(QuestionNofM) = %q, want 'Question 2 of 5'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMatch(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		name  string
		prefs []string
		want  string
	}{
		{"none", nil, "en"},
		{"exact", []string{"ru"}, "ru"},
		{"accept header", []string{"ru-RU,ru;q=0.9,en;q=0.8"}, "ru"},
		{"unsupported", []string{"fr"}, "en"},
		{"garbage", []string{"!!"}, "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.prefs...); got != tt.want {
				t.Errorf("Match(%v) = %q, want %q", tt.prefs, got, tt.want)
			}
		})
	}

	if langs := Languages(); len(langs) != 2 || langs[0] != "en" {
		t.Errorf("Languages() = %v", langs)
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en", "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "StartTest")
	}))

	req := httptest.NewRequest(http.MethodGet, "/?lang=ru", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got != "Начать тест" {
		t.Errorf("with ?lang=ru got %q", got)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("expected lang cookie to be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "de, en;q=0.5")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Start Test" {
		t.Errorf("with Accept-Language en got %q", got)
	}
}

func TestMiddlewareCookiePath(t *testing.T) {
	initLang(t, "en")
	tests := []struct {
		basePath string
		want     string
	}{
		{"", "/"},
		{"/ru", "/ru/"},
		{"/ru/", "/ru/"},
	}
	for _, tt := range tests {
		h := Middleware("en", tt.basePath)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lang=ru", nil))
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Path != tt.want {
			t.Errorf("basePath %q: cookies = %v, want path %q", tt.basePath, cookies, tt.want)
		}
	}
}
