// Package reply renders the texts the bot sends back to users.
package reply

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"avia-bot/internal/domain"
	"avia-bot/internal/usecase"
)

// MaxMessageLength is Telegram's limit for a single text message, in characters.
const MaxMessageLength = 4096

const (
	dateTimeLayout = "02.01.2006 15:04"
	dateLayout     = "02.01.2006"
)

const (
	greetingText = "Привет! Я бот для поиска авиабилетов. 🛫\n" +
		"Просто напиши мне, куда и когда хочешь полететь, например:\n" +
		"- Найди билеты из Москвы в Париж на начало июня\n" +
		"- Хочу слетать в Барселону из Питера в июле"
	analyzingText   = "🔍 Анализирую ваш запрос..."
	resetText       = "🧹 Параметры поиска сброшены. Напишите новый запрос."
	notFoundText    = "😔 К сожалению, билетов по вашему запросу не найдено."
	offersHeader    = "🎫 Вот что я нашел:"
	clarifyHeader   = "❌ Не удалось определить параметры полета.\nПожалуйста, укажите:"
	rephraseText    = "🤔 Не удалось разобрать запрос. Пожалуйста, переформулируйте его."
	emptyText       = "✍️ Напишите, куда и когда хотите полететь."
	tooLongText     = "✂️ Сообщение слишком длинное. Опишите поездку короче."
	rateLimitedText = "⏳ Слишком много запросов. Попробуйте через минуту."
	searchFailed    = "😔 Не удалось выполнить поиск билетов. Попробуйте еще раз."
	unavailableText = "⏳ Сервис поиска билетов временно недоступен. Попробуйте позже."
	genericError    = "😔 Произошла ошибка при обработке запроса. Попробуйте позже."
)

var fieldNames = map[string]string{
	domain.FieldOrigin:      "город отправления",
	domain.FieldDestination: "город прибытия",
	domain.FieldDeparture:   "дату вылета",
	domain.FieldReturn:      "дату возвращения",
}

func Greeting() string { return greetingText }

func Analyzing() string { return analyzingText }

func Reset() string { return resetText }

// Searching summarises the parameters a search is about to run with.
func Searching(p domain.FlightParams) string {
	var b strings.Builder
	b.WriteString("🔍 Ищу билеты:\n")
	fmt.Fprintf(&b, "✈️ %s → %s\n", place(p.OriginCity, p.Origin), place(p.DestinationCity, p.Destination))
	fmt.Fprintf(&b, "📅 Вылет: %s\n", departureWindow(p))
	switch {
	case p.ReturnAt != "":
		fmt.Fprintf(&b, "🔄 Возвращение: %s", formatDate(p.ReturnAt))
	case p.TripDays > 0:
		fmt.Fprintf(&b, "🔄 Возвращение: через %d дн.", p.TripDays)
	default:
		b.WriteString("🔄 Возвращение: билет в один конец")
	}
	return b.String()
}

// Offers renders a numbered list of offers. Offers that would push the text
// past MaxMessageLength are left out whole.
func Offers(offers []domain.Offer) string {
	if len(offers) == 0 {
		return notFoundText
	}

	var b strings.Builder
	b.WriteString(offersHeader)
	size := utf8.RuneCountInString(offersHeader)
	for i, o := range offers {
		block := "\n\n" + formatOffer(i+1, o)
		n := utf8.RuneCountInString(block)
		if size+n > MaxMessageLength {
			break
		}
		b.WriteString(block)
		size += n
	}
	return b.String()
}

// ForError maps a pipeline error to the text shown to the user. Raw error
// details never reach the chat.
func ForError(err error) string {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return genericError
	}
	switch ue.Code {
	case usecase.ErrorNeedsClarification:
		return clarification(ue.Missing)
	case usecase.ErrorInvalidInput:
		if ue.Reason == "message_too_long" {
			return tooLongText
		}
		return emptyText
	case usecase.ErrorRateLimited:
		return rateLimitedText
	case usecase.ErrorSearchFailed:
		return searchFailed
	case usecase.ErrorSearchUnavailable:
		return unavailableText
	default:
		return genericError
	}
}

// clarification lists the fields to ask for. With nothing missing the
// parameters are known and the message itself could not be understood.
func clarification(missing []string) string {
	if len(missing) == 0 {
		return rephraseText
	}
	var b strings.Builder
	b.WriteString(clarifyHeader)
	for _, f := range missing {
		name, ok := fieldNames[f]
		if !ok {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(name)
	}
	return b.String()
}

func formatOffer(n int, o domain.Offer) string {
	lines := []string{
		fmt.Sprintf("%d. %s → %s", n, route(o.Origin, o.OriginAirport), route(o.Destination, o.DestinationAirport)),
		fmt.Sprintf("💰 Цена: %d %s", o.Price, currencyLabel(o.Currency)),
	}
	if carrier := strings.TrimSpace(o.Airline + " " + o.FlightNumber); carrier != "" {
		lines = append(lines, "🛩 Рейс: "+carrier)
	}
	lines = append(lines, "🛫 Вылет: "+o.DepartureAt.Format(dateTimeLayout))
	if o.RoundTrip() {
		lines = append(lines, "🔄 Обратно: "+o.ReturnAt.Format(dateTimeLayout))
	}
	if o.DurationMinutes > 0 {
		lines = append(lines, "⏱ Время в пути: "+formatDuration(o.DurationMinutes))
	}
	lines = append(lines, "🔀 Пересадок: "+transfers(o))
	if o.Link != "" {
		lines = append(lines, "🔗 "+o.Link)
	}
	return strings.Join(lines, "\n")
}

func formatDuration(minutes int) string {
	return fmt.Sprintf("%dч %dмин", minutes/60, minutes%60)
}

func transfers(o domain.Offer) string {
	if o.RoundTrip() {
		return fmt.Sprintf("%d / %d", o.Transfers, o.ReturnTransfers)
	}
	return fmt.Sprintf("%d", o.Transfers)
}

func currencyLabel(code string) string {
	switch strings.ToLower(code) {
	case "", "rub":
		return "₽"
	case "usd":
		return "$"
	case "eur":
		return "€"
	default:
		return strings.ToUpper(code)
	}
}

func route(city, airport string) string {
	if airport == "" || airport == city {
		return city
	}
	return fmt.Sprintf("%s (%s)", city, airport)
}

func place(city, code string) string {
	if city == "" {
		return code
	}
	return fmt.Sprintf("%s (%s)", city, code)
}

func departureWindow(p domain.FlightParams) string {
	if p.DepartureTo == "" || p.DepartureTo == p.DepartureFrom {
		return formatDate(p.DepartureFrom)
	}
	return formatDate(p.DepartureFrom) + " – " + formatDate(p.DepartureTo)
}

func formatDate(s string) string {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return s
	}
	return t.Format(dateLayout)
}
