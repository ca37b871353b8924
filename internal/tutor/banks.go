package tutor

// Activity names a kind of exercise. The values match the activity
// categories of the TEA backend.
type Activity string

const (
	ActivityColors   Activity = "colores"
	ActivityNumbers  Activity = "numeros"
	ActivityLanguage Activity = "lenguaje"
)

var greetings = []string{
	"¡Hola! Soy tu maestra virtual. ¿Cómo estás hoy?",
	"¡Buenos días! ¿Estás listo para aprender?",
	"¡Hola! Me da mucho gusto verte. ¿Qué vamos a hacer hoy?",
	"¡Hola! ¿Cómo te sientes? ¿Listo para divertirnos aprendiendo?",
}

var encouragements = []string{
	"¡Muy bien! ¡Lo estás haciendo excelente!",
	"¡Perfecto! ¡Eres muy inteligente!",
	"¡Excelente trabajo! ¡Sigue así!",
	"¡Fantástico! ¡Estoy muy orgullosa de ti!",
	"¡Increíble! ¡Lo hiciste muy bien!",
}

var corrections = []string{
	"No te preocupes, vamos a intentarlo de nuevo. ¡Tú puedes!",
	"Casi lo tienes. Vamos a practicar un poquito más.",
	"Está bien, todos aprendemos a nuestro ritmo. ¡Sigamos intentando!",
	"No pasa nada, vamos a intentarlo otra vez. ¡Confío en ti!",
}

var instructions = map[Activity][]string{
	ActivityColors: {
		"Vamos a aprender los colores. ¿Puedes decirme qué color es este?",
		"¡Excelente! Ahora vamos a identificar colores. ¿Qué color ves aquí?",
		"Los colores son muy divertidos. ¿Puedes nombrar este color?",
	},
	ActivityNumbers: {
		"Vamos a contar números. ¿Puedes contar conmigo?",
		"¡Perfecto! Ahora vamos a aprender números. ¿Cuántos hay aquí?",
		"Los números son importantes. ¿Puedes decirme qué número es este?",
	},
	ActivityLanguage: {
		"Vamos a practicar palabras. ¿Puedes repetir después de mí?",
		"¡Muy bien! Ahora vamos a aprender nuevas palabras. ¿Puedes decir...?",
		"Las palabras son divertidas. ¿Puedes pronunciar esta palabra?",
	},
}

const (
	repeatPrompt   = "No entendí lo que dijiste. ¿Puedes repetirlo?"
	wordPrompt     = "La palabra es: %s"
	celebrationFmt = "¡Excelente trabajo! Obtuviste %d puntos. ¡Estoy muy orgullosa de ti!"
)

// Instructions returns the spoken instructions for a; unknown activities get
// the language instructions.
func Instructions(a Activity) []string {
	if lines, ok := instructions[a]; ok {
		return lines
	}
	return instructions[ActivityLanguage]
}
