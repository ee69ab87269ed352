package notify

import (
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

// Subjects for the outbound email templates.
const (
	SubjectChooseObject    = "Укажите объект обслуживания"
	SubjectTaskCreated     = "Заявка принята"
	SubjectNoManager       = "Заявка не обработана"
	SubjectProcessingError = "Ошибка обработки обращения"
)

var (
	tplChooseObject = template.Must(template.New("choose").Parse(`<html><body>
<p>Здравствуйте!</p>
<p>Ваш адрес пока не привязан к объекту обслуживания. Чтобы мы могли принять
вашу заявку, выберите объект по ссылке:</p>
<p><a href="{{.Link}}">Выбрать объект</a></p>
<p>После привязки просто отправьте заявку повторно.</p>
</body></html>`))

	tplTaskCreated = template.Must(template.New("created").Parse(`<html><body>
<p>Здравствуйте!</p>
<p>Ваша заявка принята и передана менеджеру объекта «{{.ObjectName}}».</p>
<p>Номер заявки: <b>{{.TaskRef}}</b></p>
</body></html>`))

	tplNoManager = template.Must(template.New("nomanager").Parse(`<html><body>
<p>Здравствуйте!</p>
<p>К сожалению, за объектом «{{.ObjectName}}» сейчас не закреплён менеджер,
поэтому заявка не может быть обработана автоматически.</p>
<p>Пожалуйста, попробуйте позже или свяжитесь с нами напрямую.</p>
</body></html>`))

	tplProcessingError = template.Must(template.New("error").Parse(`<html><body>
<p>Здравствуйте!</p>
<p>При обработке вашего обращения произошла ошибка. Письмо не потеряно:
мы обработаем его при следующей попытке.</p>
</body></html>`))
)

func render(t *template.Template, data any) string {
	var b strings.Builder
	// Templates are compile-time constants; execution cannot fail on them.
	_ = t.Execute(&b, data)
	return b.String()
}

// ChooseObjectEmail renders the object-selection message. The link lands on
// the public binding page with the sender address URL-encoded.
func ChooseObjectEmail(baseURL, senderEmail string) (subject, body string) {
	link := fmt.Sprintf("%s/choose-object?email=%s", baseURL, url.QueryEscape(senderEmail))
	return SubjectChooseObject, render(tplChooseObject, map[string]string{"Link": link})
}

// TaskRef shortens a task id to its leading 8 characters for user display.
func TaskRef(taskID string) string {
	if len(taskID) > 8 {
		return taskID[:8]
	}
	return taskID
}

// TaskCreatedEmail renders the confirmation message.
func TaskCreatedEmail(objectName, taskID string) (subject, body string) {
	return SubjectTaskCreated, render(tplTaskCreated, map[string]string{
		"ObjectName": objectName,
		"TaskRef":    TaskRef(taskID),
	})
}

// NoManagerEmail renders the no-manager notice.
func NoManagerEmail(objectName string) (subject, body string) {
	return SubjectNoManager, render(tplNoManager, map[string]string{"ObjectName": objectName})
}

// ProcessingErrorEmail renders the generic failure notice.
func ProcessingErrorEmail() (subject, body string) {
	return SubjectProcessingError, render(tplProcessingError, nil)
}

// Telegram message texts. HTML parse mode; dynamic values must pass through
// EscapeHTML.

// EscapeHTML escapes user-controlled text for Telegram HTML parse mode.
func EscapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// StartPromptText greets a fresh user and asks for an organization name.
func StartPromptText(telegramID string) string {
	return fmt.Sprintf(
		"Здравствуйте! Ваш идентификатор: <code>%s</code>.\n"+
			"Вы пока не привязаны к объекту обслуживания.\n"+
			"Отправьте название вашей организации, и я найду её в списке.",
		EscapeHTML(telegramID))
}

// StartBoundText shows the existing binding.
func StartBoundText(objectName string) string {
	return fmt.Sprintf(
		"Вы привязаны к объекту «%s». Просто отправьте текст заявки, и она будет передана менеджеру.",
		EscapeHTML(objectName))
}

// SearchNoResultsText reports an empty organization search.
func SearchNoResultsText(query string) string {
	return fmt.Sprintf(
		"По запросу «%s» ничего не найдено. Попробуйте сформулировать иначе, например укажите часть названия или адрес.",
		EscapeHTML(query))
}

// SearchConfirmText asks to confirm the single match.
func SearchConfirmText(objectName, address string) string {
	if strings.TrimSpace(address) != "" {
		return fmt.Sprintf("Это ваш объект?\n<b>%s</b>\n%s",
			EscapeHTML(objectName), EscapeHTML(address))
	}
	return fmt.Sprintf("Это ваш объект?\n<b>%s</b>", EscapeHTML(objectName))
}

// SearchManyText heads the multi-result keyboard.
func SearchManyText() string {
	return "Нашлось несколько объектов. Выберите ваш:"
}

// BindingConfirmedText announces a successful client binding.
func BindingConfirmedText(objectName string) string {
	return fmt.Sprintf(
		"Готово! Вы привязаны к объекту «%s». Теперь просто отправьте текст заявки.",
		EscapeHTML(objectName))
}

// TaskCreatedText confirms a created task to the client.
func TaskCreatedText(objectName, taskID string) string {
	return fmt.Sprintf(
		"Заявка принята и передана менеджеру объекта «%s».\nНомер заявки: <code>%s</code>",
		EscapeHTML(objectName), TaskRef(taskID))
}

// NoManagerText mirrors the email no-manager notice.
func NoManagerText(objectName string) string {
	return fmt.Sprintf(
		"За объектом «%s» сейчас не закреплён менеджер, заявка не может быть обработана. Попробуйте позже.",
		EscapeHTML(objectName))
}

// ManagerAlertText notifies the responsible manager about a new task.
func ManagerAlertText(objectName, title, taskID string) string {
	return fmt.Sprintf(
		"Новая заявка по объекту «%s»:\n<b>%s</b>\nНомер: <code>%s</code>",
		EscapeHTML(objectName), EscapeHTML(title), TaskRef(taskID))
}

// Staff binding-code outcomes.
const (
	BindCodeUsageText    = "Укажите код привязки: <code>/bind КОД</code>"
	BindCodeNotFoundText = "Код не найден. Проверьте код и попробуйте ещё раз."
	BindCodeExpiredText  = "Срок действия кода истёк. Запросите новый код."
	BindAlreadyBoundText = "Этот аккаунт уже привязан к Telegram."
	BindIDTakenText      = "Этот Telegram-аккаунт уже привязан к другому пользователю."
)

// BindSuccessText confirms a staff binding.
func BindSuccessText(userName string) string {
	return fmt.Sprintf("Готово! Telegram привязан к аккаунту «%s». Теперь вы будете получать уведомления о новых заявках.",
		EscapeHTML(userName))
}
