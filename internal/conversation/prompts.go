package conversation

import (
	"fmt"
	"time"
)

// Visitor-facing utterances. Every turn ends in one of these: the caller
// always hears a concrete next step, never silence or a raw error.

const (
	promptGreeting = "Buenas, habla con la portería virtual. ¿Me regala su nombre y a quién visita?"
	promptAskWho   = "Gracias. ¿A quién visita? Me puede dar el nombre del residente o el número de apartamento."

	promptAskSurname   = "Encontré más de una persona con ese nombre. ¿Me puede dar el apellido o el número de apartamento?"
	promptAskApartment = "No encontré a nadie con ese nombre. ¿Sabe el número del apartamento?"

	promptApartmentUnknown = "No encontré ese apartamento en el directorio. ¿Me confirma el número, o el nombre del residente?"
	promptAskResidentName  = "En ese apartamento viven varias personas. ¿A quién busca exactamente?"

	promptNotifying = "Perfecto, déjeme avisar al residente. Un momento por favor."

	promptWaitContacting = "Estoy contactando al residente, un momento por favor."
	promptWaitReviewing  = "El residente está revisando su solicitud, ya casi le confirmo."
	promptWaitStill      = "Seguimos esperando la respuesta del residente, gracias por su paciencia."
	promptWaitPatience   = "Aún no recibo respuesta del residente. Gracias por seguir en línea, no cuelgue por favor."

	promptEscalating = "No he podido obtener respuesta. Lo voy a comunicar con el operador de la portería, un momento."

	promptGateOpened = "El residente autorizó su ingreso. Ya le abro la puerta, siga por favor."
	promptDenied     = "Lo siento, no puedo autorizar su ingreso en este momento. Que tenga buen día."
	promptTransfer   = "Lo estoy comunicando con el operador, permanezca en línea."
	promptGoodbye    = "Gracias por comunicarse con la portería. Hasta luego."
)

// waitPrompt picks the wait message for the time elapsed since the
// resident was notified. Bands are fixed by policy; above the escalation
// threshold the caller never hears these again.
func waitPrompt(elapsed time.Duration) string {
	switch {
	case elapsed < 15*time.Second:
		return promptWaitContacting
	case elapsed < 30*time.Second:
		return promptWaitReviewing
	case elapsed < 60*time.Second:
		return promptWaitStill
	default:
		return promptWaitPatience
	}
}

func promptCustomMessage(message string) string {
	return fmt.Sprintf("El residente me pide decirle: %s. Sigo pendiente de su autorización.", message)
}

func promptResolved(residentName string) string {
	return fmt.Sprintf("Encontré a %s en el directorio. %s", residentName, promptNotifying)
}
