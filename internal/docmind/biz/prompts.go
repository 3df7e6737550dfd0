package biz

import (
	"fmt"
	"strings"
)

// 固定回复文本。
const (
	NotFoundAnswer   = "Je n'ai pas trouvé cette information dans le document."
	NoDocumentAnswer = "Aucun document correspondant à votre question n'a été trouvé."
)

func unitPrompt(text string) string {
	return "Tu es un assistant IA spécialisé en synthèse de documents professionnels en français.\n" +
		"Synthétise précisément le texte suivant en extrayant ses idées essentielles et strictement les concepts clés.\n" +
		"Ignore les introductions vagues, phrases génériques et détails accessoires.\n" +
		"Ne jamais inventer ni extrapoler, toujours rester fidèle au contenu fourni.\n\n" +
		text + "\n"
}

func intermediatePrompt(summaries []string) string {
	return "Tu es un assistant IA expert en synthèse de documents professionnels.\n\n" +
		"Fusionne les résumés partiels ci-dessous, qui se suivent dans l'ordre du document, en un seul résumé cohérent.\n" +
		"Conserve toutes les idées importantes, supprime les redondances et respecte l'ordre des idées.\n" +
		"Ne jamais inventer ni extrapoler.\n\n" +
		"Résumés partiels :\n\n" +
		strings.Join(summaries, "\n\n")
}

func finalPrompt(intermediates []string) string {
	return "Tu es un assistant IA expert en synthèse de documents professionnels pour entreprise.\n\n" +
		"À partir des résumés partiels ci-dessous, rédige un résumé final structuré et professionnel selon le plan suivant :\n\n" +
		"1. Introduction : présente le contexte général et l'objectif global du document.\n" +
		"2. Points clés : regroupe et développe les idées principales en 2 à 4 paragraphes distincts.\n" +
		"3. Conclusion : résume en une synthèse concise les principaux apports du document.\n\n" +
		"Contraintes rédactionnelles strictes :\n" +
		"- Utiliser un vocabulaire professionnel et fluide.\n" +
		"- Éviter les répétitions, formules vagues ou résumés trop courts.\n" +
		"- Respecter la grammaire, l'orthographe et la ponctuation françaises.\n" +
		"- Ne pas débuter les paragraphes par 'le document présente...' ou 'le passage suivant...'.\n" +
		"- Produire une vraie synthèse globale et homogène, pas une simple reformulation.\n\n" +
		"Voici les résumés partiels à synthétiser :\n\n" +
		strings.Join(intermediates, "\n\n")
}

// evidenceBlock 一条证据及其来源标签。
type evidenceBlock struct {
	Label string
	Text  string
}

func groundedPrompt(question string, evidence []evidenceBlock, reformulate bool) string {
	var b strings.Builder
	b.WriteString("Tu es un assistant IA qui répond uniquement à partir des extraits fournis.\n")
	b.WriteString("Si l'information n'est pas présente dans les extraits, dis-le explicitement.\n")
	b.WriteString("Réponds en français, en 1 à 3 phrases.\n")
	if reformulate {
		b.WriteString("Une réponse a déjà été donnée à cette question : formule une réponse nettement différente dans sa formulation, sans changer les faits.\n")
	}
	b.WriteString("\nExtraits :\n")
	for _, e := range evidence {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", e.Label, e.Text)
	}
	fmt.Fprintf(&b, "Question : %s\nRéponse :", question)
	return b.String()
}

func synthesisPrompt(question string, docs []DocumentHit) string {
	var b strings.Builder
	b.WriteString("Tu es un assistant IA qui synthétise plusieurs documents d'entreprise.\n")
	b.WriteString("À partir des documents ci-dessous, rédige une synthèse concise et transversale qui répond à la question.\n")
	b.WriteString("Appuie-toi uniquement sur ces documents et cite leur nom lorsque c'est utile.\n\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "Document : %s\nRésumé : %s\n\n", d.Filename, d.Excerpt)
	}
	fmt.Fprintf(&b, "Question : %s\nSynthèse :", question)
	return b.String()
}

func classifierPrompt(question string) string {
	return "Classe la question suivante selon sa portée.\n" +
		"- \"general\" : question transversale ou thématique portant sur plusieurs documents.\n" +
		"- \"specific\" : question précise portant sur le contenu d'un seul document.\n\n" +
		"Réponds uniquement avec un objet JSON de la forme :\n" +
		`{"label":"general|specific","confidence":0.0,"reason":"..."}` + "\n\n" +
		"Question : " + question + "\n"
}
