package followup

import (
	"fmt"
	"strings"

	"github.com/jonathan/agency-automator/internal/store"
)

// personalization builds the template variables for one lead from what the
// pipeline learned about it: rating, review count, and digital gaps.
func personalization(lead *store.Lead, lang string) map[string]string {
	pt := lang == "pt"

	ratingLine := pick(pt, "uma boa reputacao", "buena reputacion")
	if lead.GoogleRating != nil {
		ratingLine = fmt.Sprintf(
			pick(pt, "uma avaliacao de %g estrelas no Google", "una calificacion de %g estrellas en Google"),
			*lead.GoogleRating)
		if lead.ReviewCount != nil {
			ratingLine += fmt.Sprintf(
				pick(pt, " com %d avaliacoes", " con %d resenas"),
				*lead.ReviewCount)
		}
	}

	var gaps []string
	if lead.HasWebsite != nil && !*lead.HasWebsite {
		gaps = append(gaps, pick(pt, "nao tem site", "no tiene pagina web"))
	}
	if lead.HasSocial != nil && !*lead.HasSocial {
		gaps = append(gaps, pick(pt, "pouca presenca em redes sociais", "poca presencia en redes sociales"))
	}
	gapLine := pick(pt, "poderia ter mais presenca digital", "podria tener mas presencia digital")
	if len(gaps) > 0 {
		gapLine = strings.Join(gaps, pick(pt, " e ", " y "))
	}

	var valueProp, benefit string
	switch {
	case lead.HasWebsite != nil && !*lead.HasWebsite:
		valueProp = pick(pt,
			"Podemos criar um site profissional para voce em menos de 2 semanas",
			"Te podemos crear una pagina web profesional en menos de 2 semanas")
		benefit = pick(pt,
			"Criar um site profissional pode aumentar suas vendas em ate 30%.",
			"Crear una pagina web profesional puede aumentar tus ventas hasta un 30%.")
	case lead.HasSocial != nil && !*lead.HasSocial:
		valueProp = pick(pt,
			"Gerenciamos suas redes sociais para atrair mais clientes",
			"Manejamos tus redes sociales para atraer mas clientes")
		benefit = pick(pt,
			"Negocios com redes sociais ativas recebem em media 40% mais consultas.",
			"Negocios con redes sociales activas reciben en promedio 40% mas consultas.")
	default:
		valueProp = pick(pt,
			"Otimizamos sua presenca digital para voce aparecer mais no Google",
			"Optimizamos tu presencia digital para que aparezcas mas en Google")
		benefit = pick(pt,
			"Uma estrategia digital completa pode dobrar sua visibilidade online em 30 dias.",
			"Una estrategia digital completa puede duplicar tu visibilidad en linea en 30 dias.")
	}

	return map[string]string{
		"BusinessName":     lead.BusinessName,
		"GoogleRatingLine": ratingLine,
		"DigitalGapLine":   gapLine,
		"ValuePropLine":    valueProp,
		"SpecificBenefit":  benefit,
	}
}

func pick(pt bool, ptText, esText string) string {
	if pt {
		return ptText
	}
	return esText
}
